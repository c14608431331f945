package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hospital-assistant/internal/db"
	"hospital-assistant/pkg"
)

// Store is the record store the handlers read and write.
type Store interface {
	SearchDoctors(ctx context.Context, q db.DoctorQuery) ([]pkg.Doctor, error)
	GetDepartment(ctx context.Context, name string) (*pkg.Department, []pkg.Doctor, error)
	DepartmentNames(ctx context.Context) ([]string, error)
	FindDoctorByName(ctx context.Context, name string) (*pkg.Doctor, error)
	BookAppointment(ctx context.Context, a db.NewAppointment) (*pkg.Appointment, error)
	CancelAppointment(ctx context.Context, patientID, id int64) (*pkg.Appointment, error)
	ListAppointments(ctx context.Context, patientID int64) ([]pkg.Appointment, error)
	ListLabReports(ctx context.Context, patientID int64) ([]pkg.LabReport, error)
	ListBilling(ctx context.Context, patientID int64) ([]pkg.BillingRecord, error)
}

// handler runs one tool. patientID is zero for public tools invoked by a
// guest. Returned errors are faults; denials are payloads.
type handler func(ctx context.Context, s Store, patientID int64, args json.RawMessage) (any, error)

// ArgumentError reports arguments the engine supplied that cannot be used.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string { return e.Reason }

func decode(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ArgumentError{Reason: fmt.Sprintf("malformed arguments: %v", err)}
	}
	return nil
}

// flexInt accepts 7, 7.0 and "7".
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != float64(int64(v)) {
		return fmt.Errorf("%s is not an integer", b)
	}
	*f = flexInt(v)
	return nil
}

// SearchResult is returned by search_doctors.
type SearchResult struct {
	Found   bool         `json:"found"`
	Message string       `json:"message,omitempty"`
	Count   int          `json:"count"`
	Doctors []pkg.Doctor `json:"doctors"`
}

func searchDoctors(ctx context.Context, s Store, _ int64, raw json.RawMessage) (any, error) {
	var args struct {
		Department     string `json:"department"`
		Name           string `json:"name"`
		Specialization string `json:"specialization"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	doctors, err := s.SearchDoctors(ctx, db.DoctorQuery{
		Department:     args.Department,
		Name:           args.Name,
		Specialization: args.Specialization,
	})
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 {
		return SearchResult{Message: "No doctors found matching your criteria.", Doctors: []pkg.Doctor{}}, nil
	}
	return SearchResult{Found: true, Count: len(doctors), Doctors: doctors}, nil
}

// DepartmentDoctor is a doctor as listed under a department.
type DepartmentDoctor struct {
	Name            string  `json:"name"`
	Specialization  string  `json:"specialization"`
	ConsultationFee float64 `json:"consultation_fee"`
}

// DepartmentDetail describes a department for get_department_info.
type DepartmentDetail struct {
	Name           string             `json:"name"`
	Floor          string             `json:"floor"`
	PhoneExtension string             `json:"phone_extension"`
	OPDTimings     string             `json:"opd_timings"`
	Description    string             `json:"description"`
	Doctors        []DepartmentDoctor `json:"doctors"`
}

// DepartmentResult is returned by get_department_info.
type DepartmentResult struct {
	Found                bool              `json:"found"`
	Message              string            `json:"message,omitempty"`
	AvailableDepartments []string          `json:"available_departments,omitempty"`
	Department           *DepartmentDetail `json:"department,omitempty"`
}

func departmentInfo(ctx context.Context, s Store, _ int64, raw json.RawMessage) (any, error) {
	var args struct {
		DepartmentName string `json:"department_name"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.DepartmentName) == "" {
		return nil, &ArgumentError{Reason: "department_name is required"}
	}

	dep, doctors, err := s.GetDepartment(ctx, args.DepartmentName)
	if errors.Is(err, db.ErrNotFound) {
		names, err := s.DepartmentNames(ctx)
		if err != nil {
			return nil, err
		}
		return DepartmentResult{
			Message:              fmt.Sprintf("Department '%s' not found.", args.DepartmentName),
			AvailableDepartments: names,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	detail := &DepartmentDetail{
		Name:           dep.Name,
		Floor:          dep.Floor,
		PhoneExtension: dep.PhoneExt,
		OPDTimings:     dep.OPDTimings,
		Description:    dep.Description,
		Doctors:        make([]DepartmentDoctor, 0, len(doctors)),
	}
	for _, d := range doctors {
		detail.Doctors = append(detail.Doctors, DepartmentDoctor{
			Name:            d.Name,
			Specialization:  d.Specialization,
			ConsultationFee: d.ConsultationFee,
		})
	}
	return DepartmentResult{Found: true, Department: detail}, nil
}

// BookedAppointment is the confirmation body of a booking.
type BookedAppointment struct {
	ID              int64   `json:"id"`
	Doctor          string  `json:"doctor"`
	Department      string  `json:"department"`
	Date            string  `json:"date"`
	TimeSlot        string  `json:"time_slot"`
	Reason          string  `json:"reason"`
	ConsultationFee float64 `json:"consultation_fee"`
}

// ActionResult is returned by book_appointment and cancel_appointment.
type ActionResult struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	Appointment *BookedAppointment `json:"appointment,omitempty"`
}

func bookAppointment(ctx context.Context, s Store, patientID int64, raw json.RawMessage) (any, error) {
	var args struct {
		DoctorName string `json:"doctor_name"`
		Date       string `json:"date"`
		TimeSlot   string `json:"time_slot"`
		Reason     string `json:"reason"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.DoctorName == "" || args.Date == "" || args.TimeSlot == "" {
		return nil, &ArgumentError{Reason: "doctor_name, date and time_slot are required"}
	}
	if _, err := time.Parse("2006-01-02", args.Date); err != nil {
		return nil, &ArgumentError{Reason: fmt.Sprintf("date %q must be in YYYY-MM-DD format", args.Date)}
	}

	doctor, err := s.FindDoctorByName(ctx, args.DoctorName)
	if errors.Is(err, db.ErrNotFound) {
		return ActionResult{
			Message: fmt.Sprintf("Doctor '%s' not found. Please check the name and try again.", args.DoctorName),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	appt, err := s.BookAppointment(ctx, db.NewAppointment{
		PatientID: patientID,
		DoctorID:  doctor.ID,
		Date:      args.Date,
		TimeSlot:  args.TimeSlot,
		Reason:    args.Reason,
	})
	if errors.Is(err, db.ErrDuplicateBooking) {
		return ActionResult{
			Message: fmt.Sprintf("You already have an appointment with %s on %s at %s.", doctor.Name, args.Date, args.TimeSlot),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	return ActionResult{
		Success: true,
		Message: "Appointment booked successfully!",
		Appointment: &BookedAppointment{
			ID:              appt.ID,
			Doctor:          doctor.Name,
			Department:      doctor.Department,
			Date:            appt.Date,
			TimeSlot:        appt.TimeSlot,
			Reason:          appt.Reason,
			ConsultationFee: doctor.ConsultationFee,
		},
	}, nil
}

func cancelAppointment(ctx context.Context, s Store, patientID int64, raw json.RawMessage) (any, error) {
	var args struct {
		AppointmentID *flexInt `json:"appointment_id"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if args.AppointmentID == nil {
		return nil, &ArgumentError{Reason: "appointment_id is required"}
	}
	id := int64(*args.AppointmentID)

	appt, err := s.CancelAppointment(ctx, patientID, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ActionResult{Message: "Appointment not found or doesn't belong to you."}, nil
	case errors.Is(err, db.ErrAlreadyCancelled):
		return ActionResult{Message: "This appointment is already cancelled."}, nil
	case errors.Is(err, db.ErrAppointmentCompleted):
		return ActionResult{Message: "This appointment has already been completed and cannot be cancelled."}, nil
	case err != nil:
		return nil, err
	}
	return ActionResult{
		Success: true,
		Message: fmt.Sprintf("Appointment #%d with %s on %s has been cancelled.", id, appt.Doctor, appt.Date),
	}, nil
}

// AppointmentsResult is returned by list_appointments.
type AppointmentsResult struct {
	Found        bool              `json:"found"`
	Message      string            `json:"message,omitempty"`
	Total        int               `json:"total"`
	Upcoming     int               `json:"upcoming"`
	Appointments []pkg.Appointment `json:"appointments"`
}

func listAppointments(ctx context.Context, s Store, patientID int64, _ json.RawMessage) (any, error) {
	appts, err := s.ListAppointments(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return AppointmentsResult{Message: "You don't have any appointments.", Appointments: []pkg.Appointment{}}, nil
	}
	upcoming := 0
	for _, a := range appts {
		if a.Status == pkg.AppointmentScheduled {
			upcoming++
		}
	}
	return AppointmentsResult{Found: true, Total: len(appts), Upcoming: upcoming, Appointments: appts}, nil
}

// ReportsResult is returned by check_report_status.
type ReportsResult struct {
	Found        bool            `json:"found"`
	Message      string          `json:"message,omitempty"`
	Total        int             `json:"total"`
	ReadyCount   int             `json:"ready_count"`
	PendingCount int             `json:"pending_count"`
	Reports      []pkg.LabReport `json:"reports"`
}

func checkReportStatus(ctx context.Context, s Store, patientID int64, _ json.RawMessage) (any, error) {
	reports, err := s.ListLabReports(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return ReportsResult{Message: "No lab reports found for your account.", Reports: []pkg.LabReport{}}, nil
	}
	out := ReportsResult{Found: true, Total: len(reports), Reports: reports}
	for _, r := range reports {
		switch r.Status {
		case "ready":
			out.ReadyCount++
		case "pending", "processing":
			out.PendingCount++
		}
	}
	return out, nil
}

// BillingResult is returned by get_billing_summary.
type BillingResult struct {
	Found            bool                `json:"found"`
	Message          string              `json:"message,omitempty"`
	TotalRecords     int                 `json:"total_records"`
	TotalAmount      float64             `json:"total_amount"`
	TotalPaid        float64             `json:"total_paid"`
	TotalOutstanding float64             `json:"total_outstanding"`
	Records          []pkg.BillingRecord `json:"records"`
}

func billingSummary(ctx context.Context, s Store, patientID int64, _ json.RawMessage) (any, error) {
	records, err := s.ListBilling(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return BillingResult{Message: "No billing records found for your account.", Records: []pkg.BillingRecord{}}, nil
	}
	out := BillingResult{Found: true, TotalRecords: len(records), Records: records}
	for _, r := range records {
		out.TotalAmount += r.Amount
		if r.Status == "paid" {
			out.TotalPaid += r.Amount
		} else {
			out.TotalOutstanding += r.Amount
		}
	}
	return out, nil
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hospital-assistant/pkg"
)

// Repository wraps the hospital record queries.
type Repository struct {
	DB     *sql.DB
	driver string
}

// NewRepository constructs a Repository from an open database. The caller
// owns the connection lifecycle.
func NewRepository(db *sql.DB, driver string) *Repository {
	return &Repository{DB: db, driver: driver}
}

// DoctorQuery filters SearchDoctors. Empty fields match everything.
type DoctorQuery struct {
	Department     string
	Name           string
	Specialization string
}

// NewAppointment is the input to BookAppointment.
type NewAppointment struct {
	PatientID int64
	DoctorID  int64
	Date      string
	TimeSlot  string
	Reason    string
}

func (r *Repository) q(query string) string { return rebind(r.driver, query) }

func like(s string) string { return "%" + strings.ToLower(strings.TrimSpace(s)) + "%" }

// FindPatientByPhone returns the patient registered with phone.
func (r *Repository) FindPatientByPhone(ctx context.Context, phone string) (*pkg.Patient, error) {
	return r.scanPatient(r.DB.QueryRowContext(ctx, r.q(
		`SELECT id, name, phone, date_of_birth, COALESCE(patient_code, ''), gender, blood_group, address
         FROM patients WHERE phone = ?`), phone))
}

// GetPatient returns the patient with id.
func (r *Repository) GetPatient(ctx context.Context, id int64) (*pkg.Patient, error) {
	return r.scanPatient(r.DB.QueryRowContext(ctx, r.q(
		`SELECT id, name, phone, date_of_birth, COALESCE(patient_code, ''), gender, blood_group, address
         FROM patients WHERE id = ?`), id))
}

func (r *Repository) scanPatient(row *sql.Row) (*pkg.Patient, error) {
	var p pkg.Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.DateOfBirth, &p.PatientCode, &p.Gender, &p.BloodGroup, &p.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const doctorColumns = `d.id, d.name, d.department_id, dep.name, d.specialization, d.qualification,
        d.experience_years, d.schedule, d.available, d.consultation_fee`

func scanDoctor(scan func(dest ...any) error) (pkg.Doctor, error) {
	var (
		d        pkg.Doctor
		schedule string
	)
	err := scan(&d.ID, &d.Name, &d.DepartmentID, &d.Department, &d.Specialization, &d.Qualification,
		&d.ExperienceYears, &schedule, &d.Available, &d.ConsultationFee)
	if err != nil {
		return d, err
	}
	d.Schedule = map[string]string{}
	if schedule != "" {
		if err := json.Unmarshal([]byte(schedule), &d.Schedule); err != nil {
			return d, fmt.Errorf("decode schedule for doctor %d: %w", d.ID, err)
		}
	}
	return d, nil
}

func collectDoctors(rows *sql.Rows) ([]pkg.Doctor, error) {
	defer rows.Close()
	var out []pkg.Doctor
	for rows.Next() {
		d, err := scanDoctor(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SearchDoctors returns available doctors matching every non-empty filter
// as a case-insensitive substring.
func (r *Repository) SearchDoctors(ctx context.Context, f DoctorQuery) ([]pkg.Doctor, error) {
	query := `SELECT ` + doctorColumns + `
         FROM doctors d JOIN departments dep ON d.department_id = dep.id
         WHERE d.available = TRUE`
	var args []any
	if f.Department != "" {
		query += ` AND LOWER(dep.name) LIKE ?`
		args = append(args, like(f.Department))
	}
	if f.Name != "" {
		query += ` AND LOWER(d.name) LIKE ?`
		args = append(args, like(f.Name))
	}
	if f.Specialization != "" {
		query += ` AND LOWER(d.specialization) LIKE ?`
		args = append(args, like(f.Specialization))
	}
	query += ` ORDER BY d.id`

	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	return collectDoctors(rows)
}

// FindDoctorByName returns the first doctor whose name contains name.
func (r *Repository) FindDoctorByName(ctx context.Context, name string) (*pkg.Doctor, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+doctorColumns+`
         FROM doctors d JOIN departments dep ON d.department_id = dep.id
         WHERE LOWER(d.name) LIKE ?
         ORDER BY d.id LIMIT 1`), like(name))
	d, err := scanDoctor(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDepartment returns the first department whose name contains name
// together with its available doctors.
func (r *Repository) GetDepartment(ctx context.Context, name string) (*pkg.Department, []pkg.Doctor, error) {
	var dep pkg.Department
	err := r.DB.QueryRowContext(ctx, r.q(
		`SELECT id, name, floor, phone_ext, description, opd_timings
         FROM departments WHERE LOWER(name) LIKE ? ORDER BY id LIMIT 1`), like(name)).
		Scan(&dep.ID, &dep.Name, &dep.Floor, &dep.PhoneExt, &dep.Description, &dep.OPDTimings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+doctorColumns+`
         FROM doctors d JOIN departments dep ON d.department_id = dep.id
         WHERE d.department_id = ? AND d.available = TRUE ORDER BY d.id`), dep.ID)
	if err != nil {
		return nil, nil, err
	}
	doctors, err := collectDoctors(rows)
	if err != nil {
		return nil, nil, err
	}
	return &dep, doctors, nil
}

// DepartmentNames lists every department name.
func (r *Repository) DepartmentNames(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name FROM departments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// BookAppointment creates a scheduled appointment. An empty reason becomes
// "General consultation".
func (r *Repository) BookAppointment(ctx context.Context, a NewAppointment) (*pkg.Appointment, error) {
	if a.Reason == "" {
		a.Reason = "General consultation"
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, r.q(
		`SELECT COUNT(*) FROM appointments
         WHERE patient_id = ? AND doctor_id = ? AND date = ? AND time_slot = ? AND status = ?`),
		a.PatientID, a.DoctorID, a.Date, a.TimeSlot, pkg.AppointmentScheduled).Scan(&existing)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicateBooking
	}

	var id int64
	err = tx.QueryRowContext(ctx, r.q(
		`INSERT INTO appointments (patient_id, doctor_id, date, time_slot, status, reason)
         VALUES (?, ?, ?, ?, ?, ?)
         RETURNING id`),
		a.PatientID, a.DoctorID, a.Date, a.TimeSlot, pkg.AppointmentScheduled, a.Reason).Scan(&id)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateBooking
	}
	if err != nil {
		return nil, err
	}

	appt, err := r.appointment(ctx, tx, a.PatientID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return appt, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const appointmentColumns = `a.id, a.patient_id, a.doctor_id, d.name, dep.name, a.date, a.time_slot, a.status, a.reason`

const appointmentJoin = `FROM appointments a
         JOIN doctors d ON a.doctor_id = d.id
         JOIN departments dep ON d.department_id = dep.id`

func scanAppointment(scan func(dest ...any) error) (pkg.Appointment, error) {
	var a pkg.Appointment
	err := scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Doctor, &a.Department, &a.Date, &a.TimeSlot, &a.Status, &a.Reason)
	return a, err
}

func (r *Repository) appointment(ctx context.Context, q queryer, patientID, id int64) (*pkg.Appointment, error) {
	row := q.QueryRowContext(ctx, r.q(`SELECT `+appointmentColumns+` `+appointmentJoin+`
         WHERE a.id = ? AND a.patient_id = ?`), id, patientID)
	a, err := scanAppointment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAppointment returns an appointment owned by patientID.
func (r *Repository) GetAppointment(ctx context.Context, patientID, id int64) (*pkg.Appointment, error) {
	return r.appointment(ctx, r.DB, patientID, id)
}

// CancelAppointment marks an appointment owned by patientID as cancelled.
// Appointments of other patients are reported as ErrNotFound.
func (r *Repository) CancelAppointment(ctx context.Context, patientID, id int64) (*pkg.Appointment, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	appt, err := r.appointment(ctx, tx, patientID, id)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case pkg.AppointmentCancelled:
		return nil, ErrAlreadyCancelled
	case pkg.AppointmentCompleted:
		return nil, ErrAppointmentCompleted
	}

	if _, err := tx.ExecContext(ctx, r.q(`UPDATE appointments SET status = ? WHERE id = ?`),
		pkg.AppointmentCancelled, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	appt.Status = pkg.AppointmentCancelled
	return appt, nil
}

// ListAppointments returns every appointment of patientID, newest date first.
func (r *Repository) ListAppointments(ctx context.Context, patientID int64) ([]pkg.Appointment, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+appointmentColumns+` `+appointmentJoin+`
         WHERE a.patient_id = ? ORDER BY a.date DESC, a.id DESC`), patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// NextScheduledAppointment returns the earliest scheduled appointment of
// patientID.
func (r *Repository) NextScheduledAppointment(ctx context.Context, patientID int64) (*pkg.Appointment, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+appointmentColumns+` `+appointmentJoin+`
         WHERE a.patient_id = ? AND a.status = ?
         ORDER BY a.date, a.time_slot LIMIT 1`), patientID, pkg.AppointmentScheduled)
	a, err := scanAppointment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListLabReports returns the lab reports of patientID, newest order first.
func (r *Repository) ListLabReports(ctx context.Context, patientID int64) ([]pkg.LabReport, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(
		`SELECT id, test_name, status, ordered_date, COALESCE(result_date, ''), department, COALESCE(notes, '')
         FROM lab_reports WHERE patient_id = ? ORDER BY ordered_date DESC, id DESC`), patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.LabReport
	for rows.Next() {
		var l pkg.LabReport
		if err := rows.Scan(&l.ID, &l.TestName, &l.Status, &l.OrderedDate, &l.ResultDate, &l.Department, &l.Notes); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListBilling returns the billing records of patientID, newest first.
func (r *Repository) ListBilling(ctx context.Context, patientID int64) ([]pkg.BillingRecord, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(
		`SELECT id, description, amount, status, date, COALESCE(payment_method, ''), invoice_number
         FROM billing_records WHERE patient_id = ? ORDER BY date DESC, id DESC`), patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.BillingRecord
	for rows.Next() {
		var b pkg.BillingRecord
		if err := rows.Scan(&b.ID, &b.Description, &b.Amount, &b.Status, &b.Date, &b.PaymentMethod, &b.InvoiceNumber); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddPatient registers a patient and assigns the code CGH-<10000+id>.
func (r *Repository) AddPatient(ctx context.Context, p pkg.Patient) (*pkg.Patient, error) {
	if len(p.Phone) != 10 || strings.Trim(p.Phone, "0123456789") != "" {
		return nil, fmt.Errorf("phone %q must be 10 digits", p.Phone)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, errors.New("patient name is required")
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, r.q(
		`INSERT INTO patients (name, phone, date_of_birth, gender, blood_group, address)
         VALUES (?, ?, ?, ?, ?, ?)
         RETURNING id`),
		p.Name, p.Phone, p.DateOfBirth, p.Gender, p.BloodGroup, p.Address).Scan(&p.ID)
	if isUniqueViolation(err) {
		return nil, ErrPhoneExists
	}
	if err != nil {
		return nil, err
	}

	if p.PatientCode == "" {
		p.PatientCode = fmt.Sprintf("CGH-%d", 10000+p.ID)
	}
	if _, err := tx.ExecContext(ctx, r.q(`UPDATE patients SET patient_code = ? WHERE id = ?`), p.PatientCode, p.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

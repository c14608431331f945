package db

import (
	"context"
	"encoding/json"
	"fmt"

	"hospital-assistant/pkg"
)

type seedDoctor struct {
	pkg.Doctor
	department string
}

type seedAppointment struct {
	patient string
	doctor  string
	date    string
	slot    string
	status  string
	reason  string
}

type seedReport struct {
	patient    string
	test       string
	status     string
	ordered    string
	result     string
	department string
}

type seedBill struct {
	patient     string
	description string
	amount      float64
	status      string
	date        string
	method      string
	invoice     string
}

var seedDepartments = []pkg.Department{
	{Name: "General Medicine", Floor: "Ground Floor", PhoneExt: "101", Description: "Comprehensive primary care and internal medicine services.", OPDTimings: "Mon-Sat: 9:00 AM - 5:00 PM"},
	{Name: "Cardiology", Floor: "2nd Floor", PhoneExt: "201", Description: "Heart and cardiovascular disease diagnosis and treatment.", OPDTimings: "Mon-Fri: 9:00 AM - 4:00 PM"},
	{Name: "Orthopedics", Floor: "3rd Floor", PhoneExt: "301", Description: "Bone, joint, and musculoskeletal care including trauma and sports injuries.", OPDTimings: "Mon-Sat: 10:00 AM - 4:00 PM"},
	{Name: "Pediatrics", Floor: "1st Floor", PhoneExt: "102", Description: "Medical care for infants, children, and adolescents.", OPDTimings: "Mon-Sat: 9:00 AM - 6:00 PM"},
	{Name: "ENT", Floor: "2nd Floor", PhoneExt: "202", Description: "Ear, Nose, and Throat specialist services including audiology.", OPDTimings: "Mon-Fri: 10:00 AM - 3:00 PM"},
	{Name: "Dermatology", Floor: "1st Floor", PhoneExt: "103", Description: "Skin, hair, and nail disease treatment and cosmetic dermatology.", OPDTimings: "Mon-Fri: 9:00 AM - 2:00 PM"},
	{Name: "Neurology", Floor: "3rd Floor", PhoneExt: "302", Description: "Brain, spinal cord, and nervous system disorders.", OPDTimings: "Mon-Fri: 9:00 AM - 3:00 PM"},
	{Name: "Oncology", Floor: "4th Floor", PhoneExt: "401", Description: "Cancer diagnosis, treatment, and supportive care.", OPDTimings: "Mon-Fri: 9:00 AM - 4:00 PM"},
}

func weekdays(hours string, days ...string) map[string]string {
	m := make(map[string]string, len(days))
	for _, d := range days {
		m[d] = hours
	}
	return m
}

var seedDoctors = []seedDoctor{
	{pkg.Doctor{Name: "Dr. Ananya Sharma", Specialization: "Internal Medicine, Diabetes Management", Qualification: "MBBS, MD (Internal Medicine)", ExperienceYears: 12, Schedule: weekdays("9:00-13:00", "Mon", "Tue", "Wed", "Thu", "Fri"), ConsultationFee: 500}, "General Medicine"},
	{pkg.Doctor{Name: "Dr. Rajesh Patel", Specialization: "General Practice, Preventive Medicine", Qualification: "MBBS, DNB (Family Medicine)", ExperienceYears: 8, Schedule: map[string]string{"Mon": "14:00-17:00", "Tue": "14:00-17:00", "Wed": "14:00-17:00", "Thu": "14:00-17:00", "Sat": "9:00-13:00"}, ConsultationFee: 400}, "General Medicine"},
	{pkg.Doctor{Name: "Dr. Vikram Mehta", Specialization: "Interventional Cardiology, Heart Failure", Qualification: "MBBS, MD, DM (Cardiology)", ExperienceYears: 18, Schedule: weekdays("9:00-14:00", "Mon", "Wed", "Fri"), ConsultationFee: 1200}, "Cardiology"},
	{pkg.Doctor{Name: "Dr. Priya Krishnan", Specialization: "Echocardiography, Preventive Cardiology", Qualification: "MBBS, MD (Cardiology)", ExperienceYears: 10, Schedule: map[string]string{"Tue": "9:00-13:00", "Thu": "9:00-13:00", "Sat": "9:00-12:00"}, ConsultationFee: 1000}, "Cardiology"},
	{pkg.Doctor{Name: "Dr. Suresh Reddy", Specialization: "Joint Replacement, Sports Medicine", Qualification: "MBBS, MS (Orthopedics), Fellowship in Joint Replacement", ExperienceYears: 15, Schedule: map[string]string{"Mon": "10:00-14:00", "Tue": "10:00-14:00", "Thu": "10:00-14:00", "Sat": "10:00-13:00"}, ConsultationFee: 800}, "Orthopedics"},
	{pkg.Doctor{Name: "Dr. Meera Iyer", Specialization: "Neonatology, General Pediatrics", Qualification: "MBBS, MD (Pediatrics), Fellowship in Neonatology", ExperienceYears: 14, Schedule: map[string]string{"Mon": "9:00-14:00", "Tue": "9:00-14:00", "Wed": "9:00-14:00", "Thu": "9:00-14:00", "Fri": "9:00-14:00", "Sat": "9:00-12:00"}, ConsultationFee: 600}, "Pediatrics"},
	{pkg.Doctor{Name: "Dr. Arjun Nair", Specialization: "Pediatric Pulmonology, Allergies", Qualification: "MBBS, DCH, DNB (Pediatrics)", ExperienceYears: 7, Schedule: weekdays("14:00-18:00", "Mon", "Wed", "Fri"), ConsultationFee: 500}, "Pediatrics"},
	{pkg.Doctor{Name: "Dr. Kavya Deshmukh", Specialization: "Otology, Cochlear Implants", Qualification: "MBBS, MS (ENT), Fellowship in Otology", ExperienceYears: 11, Schedule: weekdays("10:00-14:00", "Mon", "Wed", "Fri"), ConsultationFee: 700}, "ENT"},
	{pkg.Doctor{Name: "Dr. Rohan Gupta", Specialization: "Clinical Dermatology, Cosmetology", Qualification: "MBBS, MD (Dermatology)", ExperienceYears: 9, Schedule: weekdays("9:00-13:00", "Mon", "Tue", "Wed", "Thu", "Fri"), ConsultationFee: 600}, "Dermatology"},
	{pkg.Doctor{Name: "Dr. Sunita Joshi", Specialization: "Stroke, Epilepsy, Movement Disorders", Qualification: "MBBS, MD, DM (Neurology)", ExperienceYears: 16, Schedule: map[string]string{"Tue": "9:00-13:00", "Thu": "9:00-13:00", "Sat": "9:00-12:00"}, ConsultationFee: 1100}, "Neurology"},
	{pkg.Doctor{Name: "Dr. Anil Kapoor", Specialization: "Headache Medicine, Neuromuscular Disorders", Qualification: "MBBS, MD (Neurology)", ExperienceYears: 6, Schedule: weekdays("9:00-13:00", "Mon", "Wed", "Fri"), ConsultationFee: 800}, "Neurology"},
	{pkg.Doctor{Name: "Dr. Fatima Sheikh", Specialization: "Medical Oncology, Breast Cancer", Qualification: "MBBS, MD, DM (Medical Oncology)", ExperienceYears: 13, Schedule: weekdays("9:00-14:00", "Mon", "Tue", "Wed", "Thu", "Fri"), ConsultationFee: 1500}, "Oncology"},
	{pkg.Doctor{Name: "Dr. Karan Singh", Specialization: "Spine Surgery, Trauma", Qualification: "MBBS, MS (Orthopedics), MCh (Spine Surgery)", ExperienceYears: 20, Schedule: weekdays("14:00-17:00", "Mon", "Wed", "Fri"), ConsultationFee: 1000}, "Orthopedics"},
	{pkg.Doctor{Name: "Dr. Lakshmi Menon", Specialization: "Pediatric Dermatology, Psoriasis", Qualification: "MBBS, DVD, DNB (Dermatology)", ExperienceYears: 8, Schedule: map[string]string{"Tue": "9:00-13:00", "Thu": "9:00-13:00", "Sat": "9:00-12:00"}, ConsultationFee: 500}, "Dermatology"},
	{pkg.Doctor{Name: "Dr. Nikhil Verma", Specialization: "Rhinology, Sinus Surgery", Qualification: "MBBS, DNB (ENT)", ExperienceYears: 5, Schedule: map[string]string{"Tue": "10:00-14:00", "Thu": "10:00-14:00", "Sat": "10:00-13:00"}, ConsultationFee: 600}, "ENT"},
}

var seedPatients = []pkg.Patient{
	{Name: "Amit Kumar", Phone: "9876543210", DateOfBirth: "1985-03-15", PatientCode: "CGH-10001", Gender: "Male", BloodGroup: "B+", Address: "42, MG Road, Sector 14, Gurgaon"},
	{Name: "Sneha Verma", Phone: "9876543211", DateOfBirth: "1992-07-22", PatientCode: "CGH-10002", Gender: "Female", BloodGroup: "A+", Address: "15, Lajpat Nagar, New Delhi"},
	{Name: "Ravi Shankar", Phone: "9876543212", DateOfBirth: "1978-11-05", PatientCode: "CGH-10003", Gender: "Male", BloodGroup: "O+", Address: "7, Jubilee Hills, Hyderabad"},
	{Name: "Deepa Nair", Phone: "9876543213", DateOfBirth: "2001-01-30", PatientCode: "CGH-10004", Gender: "Female", BloodGroup: "AB+", Address: "23, Koramangala, Bangalore"},
	{Name: "Mahesh Choudhary", Phone: "9876543214", DateOfBirth: "1968-09-18", PatientCode: "CGH-10005", Gender: "Male", BloodGroup: "O-", Address: "88, Civil Lines, Jaipur"},
}

var seedAppointments = []seedAppointment{
	{"Amit Kumar", "Dr. Ananya Sharma", "2026-02-12", "10:00 AM", pkg.AppointmentScheduled, "Routine diabetes follow-up"},
	{"Amit Kumar", "Dr. Vikram Mehta", "2026-02-14", "11:00 AM", pkg.AppointmentScheduled, "Annual cardiac check-up"},
	{"Sneha Verma", "Dr. Meera Iyer", "2026-02-11", "9:30 AM", pkg.AppointmentScheduled, "Child vaccination"},
	{"Ravi Shankar", "Dr. Suresh Reddy", "2026-02-10", "10:00 AM", pkg.AppointmentCompleted, "Knee pain follow-up"},
	{"Deepa Nair", "Dr. Rohan Gupta", "2026-02-13", "11:00 AM", pkg.AppointmentScheduled, "Acne treatment consultation"},
}

var seedReports = []seedReport{
	{"Amit Kumar", "HbA1c (Glycated Hemoglobin)", "ready", "2026-02-05", "2026-02-07", "Pathology"},
	{"Amit Kumar", "Lipid Profile", "processing", "2026-02-09", "", "Biochemistry"},
	{"Sneha Verma", "Complete Blood Count (CBC)", "ready", "2026-02-06", "2026-02-07", "Hematology"},
	{"Ravi Shankar", "X-Ray Left Knee", "ready", "2026-02-08", "2026-02-09", "Radiology"},
	{"Ravi Shankar", "MRI Left Knee", "pending", "2026-02-10", "", "Radiology"},
	{"Mahesh Choudhary", "ECG", "ready", "2026-02-04", "2026-02-04", "Cardiology"},
	{"Mahesh Choudhary", "Thyroid Function Test", "processing", "2026-02-09", "", "Pathology"},
}

var seedBills = []seedBill{
	{"Amit Kumar", "Consultation - Dr. Ananya Sharma", 500, "paid", "2026-01-15", "UPI", "INV-2026-0101"},
	{"Amit Kumar", "HbA1c Test", 800, "paid", "2026-02-05", "Card", "INV-2026-0234"},
	{"Amit Kumar", "Lipid Profile Test", 1200, "unpaid", "2026-02-09", "", "INV-2026-0289"},
	{"Sneha Verma", "Pediatric Consultation - Dr. Meera Iyer", 600, "paid", "2026-02-01", "Cash", "INV-2026-0210"},
	{"Ravi Shankar", "Orthopedic Consultation + X-Ray", 1800, "paid", "2026-02-08", "Insurance", "INV-2026-0267"},
	{"Ravi Shankar", "MRI Left Knee", 5500, "unpaid", "2026-02-10", "", "INV-2026-0290"},
	{"Mahesh Choudhary", "Cardiology Consultation + ECG", 1600, "paid", "2026-02-04", "UPI", "INV-2026-0245"},
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Seed populates an empty database with the demo hospital. It reports false
// when departments already exist.
func (r *Repository) Seed(ctx context.Context) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM departments`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	insert := func(query string, args ...any) (int64, error) {
		var id int64
		err := tx.QueryRowContext(ctx, r.q(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}

	deps := make(map[string]int64, len(seedDepartments))
	for _, d := range seedDepartments {
		id, err := insert(`INSERT INTO departments (name, floor, phone_ext, description, opd_timings) VALUES (?, ?, ?, ?, ?)`,
			d.Name, d.Floor, d.PhoneExt, d.Description, d.OPDTimings)
		if err != nil {
			return false, fmt.Errorf("seed department %s: %w", d.Name, err)
		}
		deps[d.Name] = id
	}

	docs := make(map[string]int64, len(seedDoctors))
	for _, d := range seedDoctors {
		schedule, err := json.Marshal(d.Schedule)
		if err != nil {
			return false, err
		}
		id, err := insert(`INSERT INTO doctors (name, department_id, specialization, qualification, experience_years, schedule, available, consultation_fee)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Name, deps[d.department], d.Specialization, d.Qualification, d.ExperienceYears, string(schedule), true, d.ConsultationFee)
		if err != nil {
			return false, fmt.Errorf("seed doctor %s: %w", d.Name, err)
		}
		docs[d.Name] = id
	}

	pats := make(map[string]int64, len(seedPatients))
	for _, p := range seedPatients {
		id, err := insert(`INSERT INTO patients (name, phone, date_of_birth, patient_code, gender, blood_group, address)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.Phone, p.DateOfBirth, p.PatientCode, p.Gender, p.BloodGroup, p.Address)
		if err != nil {
			return false, fmt.Errorf("seed patient %s: %w", p.Name, err)
		}
		pats[p.Name] = id
	}

	for _, a := range seedAppointments {
		if _, err := insert(`INSERT INTO appointments (patient_id, doctor_id, date, time_slot, status, reason) VALUES (?, ?, ?, ?, ?, ?)`,
			pats[a.patient], docs[a.doctor], a.date, a.slot, a.status, a.reason); err != nil {
			return false, fmt.Errorf("seed appointment: %w", err)
		}
	}
	for _, l := range seedReports {
		if _, err := insert(`INSERT INTO lab_reports (patient_id, test_name, status, ordered_date, result_date, department) VALUES (?, ?, ?, ?, ?, ?)`,
			pats[l.patient], l.test, l.status, l.ordered, nullable(l.result), l.department); err != nil {
			return false, fmt.Errorf("seed lab report: %w", err)
		}
	}
	for _, b := range seedBills {
		if _, err := insert(`INSERT INTO billing_records (patient_id, description, amount, status, date, payment_method, invoice_number) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			pats[b.patient], b.description, b.amount, b.status, b.date, nullable(b.method), b.invoice); err != nil {
			return false, fmt.Errorf("seed billing record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

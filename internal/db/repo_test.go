package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-assistant/pkg"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	conn, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	repo := NewRepository(conn, DriverSQLite)
	seeded, err := repo.Seed(ctx)
	require.NoError(t, err)
	require.True(t, seeded)
	return repo
}

func patientID(t *testing.T, r *Repository, phone string) int64 {
	t.Helper()
	p, err := r.FindPatientByPhone(context.Background(), phone)
	require.NoError(t, err)
	return p.ID
}

func TestSeedIsIdempotent(t *testing.T) {
	r := newTestRepo(t)
	seeded, err := r.Seed(context.Background())
	require.NoError(t, err)
	assert.False(t, seeded)

	names, err := r.DepartmentNames(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 8)
}

func TestMigrateTwice(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, Migrate(context.Background(), r.DB, DriverSQLite))
}

func TestFindPatientByPhone(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	p, err := r.FindPatientByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "Amit Kumar", p.Name)
	assert.Equal(t, "CGH-10001", p.PatientCode)

	_, err = r.FindPatientByPhone(ctx, "9000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestSearchDoctors(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	cardio, err := r.SearchDoctors(ctx, DoctorQuery{Department: "cardio"})
	require.NoError(t, err)
	require.Len(t, cardio, 2)
	assert.Equal(t, "Cardiology", cardio[0].Department)
	assert.Equal(t, "9:00-14:00", cardio[0].Schedule["Mon"])

	byName, err := r.SearchDoctors(ctx, DoctorQuery{Name: "MEHTA"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Dr. Vikram Mehta", byName[0].Name)

	combined, err := r.SearchDoctors(ctx, DoctorQuery{Department: "Pediatrics", Specialization: "allerg"})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "Dr. Arjun Nair", combined[0].Name)

	none, err := r.SearchDoctors(ctx, DoctorQuery{Department: "veterinary"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetDepartment(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	dep, doctors, err := r.GetDepartment(ctx, "ent")
	require.NoError(t, err)
	assert.Equal(t, "2nd Floor", dep.Floor)
	assert.Equal(t, "202", dep.PhoneExt)
	assert.NotEmpty(t, doctors)

	_, _, err = r.GetDepartment(ctx, "veterinary")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookAppointment(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	pid := patientID(t, r, "9876543211")

	doc, err := r.FindDoctorByName(ctx, "Rohan Gupta")
	require.NoError(t, err)

	appt, err := r.BookAppointment(ctx, NewAppointment{
		PatientID: pid, DoctorID: doc.ID, Date: "2026-11-02", TimeSlot: "10:00 AM",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rohan Gupta", appt.Doctor)
	assert.Equal(t, "Dermatology", appt.Department)
	assert.Equal(t, "General consultation", appt.Reason)
	assert.Equal(t, pkg.AppointmentScheduled, appt.Status)

	_, err = r.BookAppointment(ctx, NewAppointment{
		PatientID: pid, DoctorID: doc.ID, Date: "2026-11-02", TimeSlot: "10:00 AM", Reason: "again",
	})
	assert.ErrorIs(t, err, ErrDuplicateBooking)

	list, err := r.ListAppointments(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "2026-11-02", list[0].Date)
}

func TestCancelAppointment(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	amit := patientID(t, r, "9876543210")
	ravi := patientID(t, r, "9876543212")

	amitAppts, err := r.ListAppointments(ctx, amit)
	require.NoError(t, err)
	require.NotEmpty(t, amitAppts)
	target := amitAppts[0].ID

	_, err = r.CancelAppointment(ctx, ravi, target)
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, err := r.CancelAppointment(ctx, amit, target)
	require.NoError(t, err)
	assert.Equal(t, pkg.AppointmentCancelled, cancelled.Status)

	_, err = r.CancelAppointment(ctx, amit, target)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	raviAppts, err := r.ListAppointments(ctx, ravi)
	require.NoError(t, err)
	require.Len(t, raviAppts, 1)
	_, err = r.CancelAppointment(ctx, ravi, raviAppts[0].ID)
	assert.ErrorIs(t, err, ErrAppointmentCompleted)
}

func TestCancelledSlotCanBeRebooked(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	pid := patientID(t, r, "9876543213")
	doc, err := r.FindDoctorByName(ctx, "Nikhil")
	require.NoError(t, err)

	req := NewAppointment{PatientID: pid, DoctorID: doc.ID, Date: "2026-12-01", TimeSlot: "11:00 AM"}
	first, err := r.BookAppointment(ctx, req)
	require.NoError(t, err)
	_, err = r.CancelAppointment(ctx, pid, first.ID)
	require.NoError(t, err)

	second, err := r.BookAppointment(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestNextScheduledAppointment(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	next, err := r.NextScheduledAppointment(ctx, patientID(t, r, "9876543210"))
	require.NoError(t, err)
	assert.Equal(t, "2026-02-12", next.Date)
	assert.Equal(t, "Dr. Ananya Sharma", next.Doctor)

	_, err = r.NextScheduledAppointment(ctx, patientID(t, r, "9876543214"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportsAndBilling(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	amit := patientID(t, r, "9876543210")

	reports, err := r.ListLabReports(ctx, amit)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "Lipid Profile", reports[0].TestName)
	assert.Empty(t, reports[0].ResultDate)

	bills, err := r.ListBilling(ctx, amit)
	require.NoError(t, err)
	require.Len(t, bills, 3)
	assert.Equal(t, "INV-2026-0289", bills[0].InvoiceNumber)
	assert.Empty(t, bills[0].PaymentMethod)

	none, err := r.ListLabReports(ctx, patientID(t, r, "9876543213"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddPatient(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	p, err := r.AddPatient(ctx, pkg.Patient{Name: "Priya Das", Phone: "9123456780"})
	require.NoError(t, err)
	assert.Equal(t, "CGH-10006", p.PatientCode)

	found, err := r.FindPatientByPhone(ctx, "9123456780")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = r.AddPatient(ctx, pkg.Patient{Name: "Dup", Phone: "9123456780"})
	assert.ErrorIs(t, err, ErrPhoneExists)

	_, err = r.AddPatient(ctx, pkg.Patient{Name: "Short", Phone: "12345"})
	assert.Error(t, err)
}

func TestAuditTrail(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	pid := int64(1)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordToolInvocation(ctx, pkg.ToolInvocation{
		Timestamp: at, SessionID: "s1", IdentityLevel: pkg.LevelGuest, Channel: pkg.ChannelWeb,
		ToolName: "search_doctors", Arguments: `{"department":"ENT"}`, Success: true,
		ResultSummary: `{"found":true}`, DurationMS: 3.5,
	}))
	require.NoError(t, r.RecordToolInvocation(ctx, pkg.ToolInvocation{
		Timestamp: at.Add(time.Second), SessionID: "s2", IdentityLevel: pkg.LevelRegistered, PatientID: &pid,
		Channel: pkg.ChannelVoice, ToolName: "list_appointments", Arguments: `{}`, Success: false,
	}))

	all, err := r.ListToolInvocations(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "list_appointments", all[0].ToolName)
	require.NotNil(t, all[0].PatientID)
	assert.Equal(t, int64(1), *all[0].PatientID)
	assert.Equal(t, pkg.ChannelVoice, all[0].Channel)
	assert.Nil(t, all[1].PatientID)
	assert.True(t, all[1].Success)
	assert.True(t, at.Equal(all[1].Timestamp))

	s1, err := r.ListToolInvocations(ctx, AuditFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.InDelta(t, 3.5, s1[0].DurationMS, 0.001)
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = ?`
	assert.Equal(t, q, rebind(DriverSQLite, q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, rebind(DriverPostgres, q))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

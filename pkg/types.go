package pkg

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by record lookups that match nothing.
var ErrNotFound = errors.New("not found")

// IdentityLevel describes how much the assistant knows about the person on
// the other end of a conversation.
type IdentityLevel string

const (
	LevelGuest      IdentityLevel = "guest"
	LevelRegistered IdentityLevel = "registered"
)

// Channel identifies the transport a conversation arrived on.
type Channel string

const (
	ChannelWeb   Channel = "web"
	ChannelVoice Channel = "voice"
)

// Role describes who authored a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AccessLevel gates which knowledge snippets may be retrieved.
type AccessLevel string

const (
	AccessPublic AccessLevel = "public"
	AccessAll    AccessLevel = "all"
)

// Department is a hospital department.
type Department struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Floor       string `json:"floor"`
	PhoneExt    string `json:"phone_extension"`
	Description string `json:"description"`
	OPDTimings  string `json:"opd_timings"`
}

// Doctor is a consulting doctor. Schedule maps a weekday abbreviation to an
// hours range, e.g. "Mon" -> "9:00-13:00".
type Doctor struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	DepartmentID    int64             `json:"-"`
	Department      string            `json:"department"`
	Specialization  string            `json:"specialization"`
	Qualification   string            `json:"qualification"`
	ExperienceYears int               `json:"experience_years"`
	Schedule        map[string]string `json:"schedule"`
	Available       bool              `json:"-"`
	ConsultationFee float64           `json:"consultation_fee"`
}

// Patient is a registered patient. Phone is the 10-digit national number.
type Patient struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	PatientCode string `json:"patient_code"`
	Gender      string `json:"gender,omitempty"`
	BloodGroup  string `json:"blood_group,omitempty"`
	Address     string `json:"address,omitempty"`
}

// AppointmentStatus values stored in the appointments table.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// Appointment joins a patient and a doctor on a date and slot.
type Appointment struct {
	ID         int64  `json:"id"`
	PatientID  int64  `json:"-"`
	DoctorID   int64  `json:"-"`
	Doctor     string `json:"doctor"`
	Department string `json:"department"`
	Date       string `json:"date"`
	TimeSlot   string `json:"time_slot"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

// LabReport is a lab test ordered for a patient.
type LabReport struct {
	ID          int64  `json:"id"`
	TestName    string `json:"test_name"`
	Status      string `json:"status"`
	OrderedDate string `json:"ordered_date"`
	ResultDate  string `json:"result_date,omitempty"`
	Department  string `json:"department"`
	Notes       string `json:"notes,omitempty"`
}

// BillingRecord is a single invoice line for a patient.
type BillingRecord struct {
	ID            int64   `json:"id"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	Date          string  `json:"date"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	InvoiceNumber string  `json:"invoice_number"`
}

// ToolInvocation is the immutable audit record of one executed tool call.
type ToolInvocation struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	SessionID     string        `json:"session_id"`
	IdentityLevel IdentityLevel `json:"user_type"`
	PatientID     *int64        `json:"patient_id,omitempty"`
	Channel       Channel       `json:"channel"`
	ToolName      string        `json:"tool_name"`
	Arguments     string        `json:"tool_args"`
	Success       bool          `json:"success"`
	ResultSummary string        `json:"result_summary"`
	DurationMS    float64       `json:"duration_ms"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

// ChatResponse is returned for every processed chat message.
type ChatResponse struct {
	Reply     string        `json:"reply"`
	SessionID string        `json:"session_id"`
	UserType  IdentityLevel `json:"user_type"`
	Verified  bool          `json:"verified"`
}

// LoginRequest starts a passcode login for a phone number.
type LoginRequest struct {
	Phone     string `json:"phone" binding:"required"`
	SessionID string `json:"session_id"`
}

// LoginResponse reports whether a passcode was issued.
type LoginResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// OTPVerifyRequest submits a passcode for a phone number.
type OTPVerifyRequest struct {
	Phone     string `json:"phone" binding:"required"`
	OTP       string `json:"otp" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

// OTPVerifyResponse reports the escalation outcome.
type OTPVerifyResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	PatientName string `json:"patient_name,omitempty"`
	PatientCode string `json:"patient_code,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Problem is an RFC 7807 problem document. It implements error so handlers
// can return it directly.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("%d %s: %s", p.Status, p.Title, p.Detail)
}

// Package tools is the closed set of hospital actions the reasoning engine
// may request, and the Dispatcher that runs them with identity checks and an
// audit trail.
package tools

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// ErrUnknownTool is returned for names outside the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Kind identifies one tool.
type Kind int

const (
	SearchDoctors Kind = iota + 1
	GetDepartmentInfo
	BookAppointment
	CancelAppointment
	ListAppointments
	CheckReportStatus
	GetBillingSummary
)

var kindNames = map[Kind]string{
	SearchDoctors:     "search_doctors",
	GetDepartmentInfo: "get_department_info",
	BookAppointment:   "book_appointment",
	CancelAppointment: "cancel_appointment",
	ListAppointments:  "list_appointments",
	CheckReportStatus: "check_report_status",
	GetBillingSummary: "get_billing_summary",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("tool(%d)", int(k))
}

// ParseKind resolves a tool name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// Tool is one registry entry.
type Tool struct {
	Kind         Kind
	Description  string
	Parameters   jsonschema.Definition
	RequiresAuth bool
	run          handler
}

// Name returns the wire name of the tool.
func (t Tool) Name() string { return t.Kind.String() }

func noArgs() jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Object, Properties: map[string]jsonschema.Definition{}}
}

func str(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: desc}
}

// Registry is the resolved tool table, in declaration order.
type Registry struct {
	tools  []Tool
	byKind map[Kind]Tool
}

// DefaultRegistry returns the seven hospital tools.
func DefaultRegistry() *Registry {
	return newRegistry([]Tool{
		{
			Kind:        SearchDoctors,
			Description: "Search for doctors at the hospital. Can filter by department name, doctor name, or specialization. At least one parameter should be provided.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"department":     str("Department name to filter by (e.g., 'Cardiology', 'Pediatrics')"),
					"name":           str("Doctor name or partial name to search for"),
					"specialization": str("Specialization to search for (e.g., 'Joint Replacement')"),
				},
			},
			run: searchDoctors,
		},
		{
			Kind:        GetDepartmentInfo,
			Description: "Get information about a specific hospital department including timings, floor, and services. Available to all users.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"department_name": str("Name of the department (e.g., 'Cardiology')"),
				},
				Required: []string{"department_name"},
			},
			run: departmentInfo,
		},
		{
			Kind:        BookAppointment,
			Description: "Book an appointment with a doctor for the verified patient. Requires login.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"doctor_name": str("Full name of the doctor (e.g., 'Dr. Ananya Sharma')"),
					"date":        str("Appointment date in YYYY-MM-DD format"),
					"time_slot":   str("Preferred time slot (e.g., '10:00 AM', '2:30 PM')"),
					"reason":      str("Reason for the appointment"),
				},
				Required: []string{"doctor_name", "date", "time_slot"},
			},
			RequiresAuth: true,
			run:          bookAppointment,
		},
		{
			Kind:        CancelAppointment,
			Description: "Cancel an existing appointment for the verified patient. Requires login.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"appointment_id": {Type: jsonschema.Integer, Description: "ID of the appointment to cancel"},
				},
				Required: []string{"appointment_id"},
			},
			RequiresAuth: true,
			run:          cancelAppointment,
		},
		{
			Kind:         ListAppointments,
			Description:  "List all upcoming appointments for the verified patient. Requires login.",
			Parameters:   noArgs(),
			RequiresAuth: true,
			run:          listAppointments,
		},
		{
			Kind:         CheckReportStatus,
			Description:  "Check the status of lab reports for the verified patient. Requires login.",
			Parameters:   noArgs(),
			RequiresAuth: true,
			run:          checkReportStatus,
		},
		{
			Kind:         GetBillingSummary,
			Description:  "Get billing summary and outstanding amounts for the verified patient. Requires login.",
			Parameters:   noArgs(),
			RequiresAuth: true,
			run:          billingSummary,
		},
	})
}

func newRegistry(tools []Tool) *Registry {
	r := &Registry{tools: tools, byKind: make(map[Kind]Tool, len(tools))}
	for _, t := range tools {
		r.byKind[t.Kind] = t
	}
	return r
}

// Lookup resolves a wire name to a registered tool.
func (r *Registry) Lookup(name string) (Tool, error) {
	k, err := ParseKind(name)
	if err != nil {
		return Tool{}, err
	}
	t, ok := r.byKind[k]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Tools returns every registered tool in declaration order.
func (r *Registry) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

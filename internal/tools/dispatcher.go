package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/session"
	"hospital-assistant/pkg"
)

// SummaryLimit bounds the result summary stored in the audit trail.
const SummaryLimit = 500

// LoginRequiredMessage is returned when a guest calls a protected tool.
const LoginRequiredMessage = "This action requires authentication. Please login first with your registered phone number."

// AuditSink stores one record per tool invocation.
type AuditSink interface {
	RecordToolInvocation(ctx context.Context, inv pkg.ToolInvocation) error
}

// Caller is the identity a tool runs under. It is captured from the session
// snapshot, never from engine-supplied arguments.
type Caller struct {
	SessionID string
	Level     pkg.IdentityLevel
	Verified  bool
	PatientID int64
	Channel   pkg.Channel
}

// CallerFor derives the Caller from a session snapshot.
func CallerFor(sess session.Session, ch pkg.Channel) Caller {
	c := Caller{SessionID: sess.ID, Level: sess.Level, Verified: sess.Verified, Channel: ch}
	if sess.Identity != nil {
		c.PatientID = sess.Identity.PatientID
	}
	return c
}

func (c Caller) authenticated() bool {
	return c.Verified && c.Level == pkg.LevelRegistered && c.PatientID != 0
}

// Failure is the payload of every unsuccessful invocation.
type Failure struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	RequiresLogin bool   `json:"requires_login,omitempty"`
}

// Result is the outcome of one invocation.
type Result struct {
	Tool    string
	Success bool
	Payload any
}

// JSON renders the payload for the reasoning engine.
func (r Result) JSON() string {
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf(`{"error":"unencodable result","message":%q}`, err.Error())
	}
	return string(b)
}

// LoginRequired reports whether the call was denied for lack of identity.
func (r Result) LoginRequired() bool {
	f, ok := r.Payload.(Failure)
	return ok && f.RequiresLogin
}

// Dispatcher executes tools on behalf of a session.
type Dispatcher struct {
	registry *Registry
	store    Store
	audit    AuditSink
	log      logrus.FieldLogger
	metrics  *metrics.Collector
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records counts and latencies.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRegistry replaces DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher wires the registry to a store and an audit sink.
func NewDispatcher(store Store, audit AuditSink, log logrus.FieldLogger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: DefaultRegistry(),
		store:    store,
		audit:    audit,
		log:      log.WithField("component", "tools"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tools lists the registered tools.
func (d *Dispatcher) Tools() []Tool { return d.registry.Tools() }

// Execute runs the named tool for caller. It never returns an error: every
// failure becomes a Failure payload and every call, including unknown names,
// produces exactly one audit record.
func (d *Dispatcher) Execute(ctx context.Context, name string, args json.RawMessage, caller Caller) Result {
	start := d.now()
	log := d.log.WithFields(logrus.Fields{"tool": name, "session_id": caller.SessionID})
	d.metrics.Inc(metrics.ToolCallsTotal)

	var (
		res     Result
		summary string
	)
	tool, err := d.registry.Lookup(name)
	switch {
	case err != nil:
		log.Warn("engine requested unknown tool")
		res = Result{Tool: name, Payload: Failure{Error: "Unknown tool", Message: fmt.Sprintf("Unknown tool: %s", name)}}
		summary = err.Error()

	case tool.RequiresAuth && !caller.authenticated():
		log.WithField("user_type", caller.Level).Info("protected tool denied")
		res = Result{Tool: name, Payload: Failure{
			Error:         "Authentication required",
			Message:       LoginRequiredMessage,
			RequiresLogin: true,
		}}
		summary = "denied: authentication required"

	default:
		pid := int64(0)
		if caller.authenticated() {
			pid = caller.PatientID
		}
		payload, err := d.run(ctx, tool, pid, args)
		var argErr *ArgumentError
		switch {
		case errors.As(err, &argErr):
			log.WithError(err).Info("invalid tool arguments")
			res = Result{Tool: name, Payload: Failure{
				Error:   "Invalid arguments",
				Message: fmt.Sprintf("Invalid arguments for %s: %s", name, argErr.Reason),
			}}
			summary = "invalid arguments: " + argErr.Reason
		case err != nil:
			log.WithError(err).Error("tool execution failed")
			res = Result{Tool: name, Payload: Failure{
				Error:   "Tool execution failed",
				Message: fmt.Sprintf("An error occurred while executing %s. Please try again.", name),
			}}
			summary = "error: " + err.Error()
		default:
			res = Result{Tool: name, Success: true, Payload: payload}
			summary = res.JSON()
		}
	}

	elapsed := d.now().Sub(start)
	d.metrics.Observe(metrics.ToolLatency(name), float64(elapsed.Microseconds())/1000)
	d.record(ctx, log, caller, name, args, res.Success, summary, elapsed)
	return res
}

// run invokes the handler, converting a panic into a fault.
func (d *Dispatcher) run(ctx context.Context, t Tool, patientID int64, args json.RawMessage) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", t.Name(), r)
		}
	}()
	return t.run(ctx, d.store, patientID, args)
}

func (d *Dispatcher) record(ctx context.Context, log logrus.FieldLogger, c Caller, name string, args json.RawMessage,
	success bool, summary string, elapsed time.Duration) {
	if d.audit == nil {
		return
	}
	inv := pkg.ToolInvocation{
		Timestamp:     d.now(),
		SessionID:     c.SessionID,
		IdentityLevel: c.Level,
		Channel:       c.Channel,
		ToolName:      name,
		Arguments:     normalizeArgs(args),
		Success:       success,
		ResultSummary: truncate(summary, SummaryLimit),
		DurationMS:    float64(elapsed.Microseconds()) / 1000,
	}
	if c.authenticated() {
		pid := c.PatientID
		inv.PatientID = &pid
	}
	// The audit write is best-effort and survives a cancelled request.
	if err := d.audit.RecordToolInvocation(context.WithoutCancel(ctx), inv); err != nil {
		log.WithError(err).Error("audit write failed")
		return
	}
	log.WithFields(logrus.Fields{
		"user_type":   c.Level,
		"success":     success,
		"duration_ms": inv.DurationMS,
	}).Info("tool invoked")
}

func normalizeArgs(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	if !json.Valid(args) {
		b, _ := json.Marshal(string(args))
		return string(b)
	}
	return string(args)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

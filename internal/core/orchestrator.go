// Package core is the dialog pipeline shared by the chat and voice channels:
// session resolution, knowledge retrieval, the engine round trip with tool
// execution, and guest redaction.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"hospital-assistant/internal/auth"
	"hospital-assistant/internal/knowledge"
	"hospital-assistant/internal/llm"
	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/session"
	"hospital-assistant/internal/tools"
	"hospital-assistant/pkg"
)

// HistoryWindow is the number of prior turns sent to the engine.
const HistoryWindow = 10

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Retriever finds knowledge snippets for a query.
type Retriever interface {
	Query(ctx context.Context, text string, topK int, access pkg.AccessLevel) ([]knowledge.Snippet, error)
}

// Message is one inbound user message.
type Message struct {
	Text      string
	SessionID string
	Channel   pkg.Channel
}

// Orchestrator composes the session store, retriever and controller.
type Orchestrator struct {
	sessions   *session.Store
	auth       *auth.Authenticator
	retriever  Retriever
	controller *Controller
	metrics    *metrics.Collector
	log        logrus.FieldLogger
}

// NewOrchestrator wires the pipeline. retriever may be nil.
func NewOrchestrator(sessions *session.Store, authn *auth.Authenticator, retriever Retriever,
	controller *Controller, m *metrics.Collector, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		sessions:   sessions,
		auth:       authn,
		retriever:  retriever,
		controller: controller,
		metrics:    m,
		log:        log.WithField("component", "orchestrator"),
	}
}

// Sessions exposes the store for channel layers.
func (o *Orchestrator) Sessions() *session.Store { return o.sessions }

// Process runs one message through the pipeline. It fails only when the
// message is blank or the session disappears mid-turn.
func (o *Orchestrator) Process(ctx context.Context, m Message) (pkg.ChatResponse, error) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return pkg.ChatResponse{}, ErrEmptyMessage
	}
	if m.Channel == "" {
		m.Channel = pkg.ChannelWeb
	}

	sess := o.sessions.ResolveOrCreate(m.SessionID)
	log := o.log.WithFields(logrus.Fields{"session_id": sess.ID, "channel": m.Channel})
	history := toMessages(sess.Recent(HistoryWindow))
	if err := o.sessions.AppendTurn(sess.ID, pkg.RoleUser, text); err != nil {
		return pkg.ChatResponse{}, fmt.Errorf("append user turn: %w", err)
	}

	access := pkg.AccessPublic
	if sess.Verified {
		access = pkg.AccessAll
	}
	snippets := o.retrieve(ctx, log, text, access)

	out := o.controller.Run(ctx, Turn{
		Context: BuildContext(sess, snippets, text),
		Text:    text,
		History: history,
		Caller:  tools.CallerFor(sess, m.Channel),
	})
	o.metrics.Inc(metrics.MessagesProcessed)

	reply := out.Reply
	if !sess.Verified {
		reply = RedactForGuest(reply)
	}
	if err := o.sessions.AppendTurn(sess.ID, pkg.RoleAssistant, reply); err != nil {
		return pkg.ChatResponse{}, fmt.Errorf("append assistant turn: %w", err)
	}
	o.metrics.SetGauge(metrics.ActiveSessions, float64(o.sessions.Len()))

	log.WithFields(logrus.Fields{
		"user_type": sess.Level,
		"tools":     len(out.Results),
		"degraded":  out.Degraded,
	}).Info("message processed")

	return pkg.ChatResponse{
		Reply:     reply,
		SessionID: sess.ID,
		UserType:  sess.Level,
		Verified:  sess.Verified,
	}, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, log logrus.FieldLogger, text string, access pkg.AccessLevel) []knowledge.Snippet {
	if o.retriever == nil {
		return nil
	}
	start := time.Now()
	snippets, err := o.retriever.Query(ctx, text, knowledge.DefaultTopK, access)
	o.metrics.Since(metrics.RAGLatencyMS, start)
	if err != nil {
		log.WithError(err).Warn("knowledge retrieval failed")
		return nil
	}
	return snippets
}

func toMessages(turns []session.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Text})
	}
	return out
}

// StartLogin issues a passcode for phone and binds the attempt to a
// session, creating one when sessionID is unknown.
func (o *Orchestrator) StartLogin(ctx context.Context, phone, sessionID string) (pkg.LoginResponse, error) {
	sess := o.sessions.ResolveOrCreate(sessionID)
	ch, err := o.auth.StartLogin(ctx, strings.TrimSpace(phone))
	switch {
	case errors.Is(err, auth.ErrNotRegistered):
		return pkg.LoginResponse{
			Message:   "This phone number is not registered. Please visit the hospital to register.",
			SessionID: sess.ID,
		}, nil
	case err != nil:
		return pkg.LoginResponse{}, err
	}
	return pkg.LoginResponse{
		Success:   true,
		Message:   "OTP sent to " + ch.MaskedPhone,
		SessionID: sess.ID,
	}, nil
}

// VerifyLogin checks the passcode and escalates the session on success.
func (o *Orchestrator) VerifyLogin(ctx context.Context, phone, code, sessionID string) (pkg.OTPVerifyResponse, error) {
	v, outcome, err := o.auth.CompleteLogin(ctx, strings.TrimSpace(phone), strings.TrimSpace(code))
	if errors.Is(err, auth.ErrNotRegistered) {
		return pkg.OTPVerifyResponse{Message: "Patient not found."}, nil
	}
	if err != nil {
		return pkg.OTPVerifyResponse{}, err
	}
	if outcome != auth.Verified {
		return pkg.OTPVerifyResponse{Message: outcome.Message()}, nil
	}

	sessionID = o.sessions.ResolveOrCreate(sessionID).ID
	if _, err := o.sessions.Escalate(sessionID, v); err != nil {
		return pkg.OTPVerifyResponse{}, fmt.Errorf("escalate session: %w", err)
	}
	p := v.Patient()
	o.log.WithField("session_id", sessionID).Info("session verified")
	return pkg.OTPVerifyResponse{
		Success:     true,
		Message:     fmt.Sprintf("Welcome back, %s!", p.Name),
		PatientName: p.Name,
		PatientCode: p.PatientCode,
		SessionID:   sessionID,
	}, nil
}

// Package voice maps telephony turn events onto the dialog pipeline. Each
// active call carries a small state machine that adds login and passcode
// capture on top of the conversational loop, and emits call-control
// instructions for the transport to render.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"hospital-assistant/internal/auth"
	"hospital-assistant/internal/core"
	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/session"
	"hospital-assistant/pkg"
)

// ErrCallNotFound is returned for unknown or ended calls.
var ErrCallNotFound = errors.New("call not found")

const (
	// LowConfidence is the transcript confidence below which a turn is
	// re-prompted instead of processed.
	LowConfidence = 0.4

	DefaultMaxMisses  = 3
	DefaultStaleAfter = time.Hour

	defaultReceptionSpoken = "011-2345-6700"
)

const (
	expiredText   = "Sorry, your session has expired. Please call again."
	goodbyeText   = "Thank you for calling City General Hospital. We hope we could help. Have a great day! Goodbye."
	troubleText   = "I'm having trouble processing your request. Please try again."
	repeatText    = "I'm sorry, I didn't quite catch that. Could you please repeat?"
	silenceText   = "I didn't hear anything. Please go ahead with your question."
	loginText     = "Sure, let me help you log in. Please say your 10-digit registered phone number."
	otpPromptText = "An OTP has been sent to your phone. Please enter the 6-digit OTP using your phone keypad, followed by the hash key."
	otpRetryText  = "That doesn't seem right. Please enter the 6-digit OTP using your keypad."
	holdText      = "Sure, let me connect you to our reception. Please hold."
	busyText      = "I'm sorry, the reception line is busy. Please try calling again later."
)

// Config holds channel settings.
type Config struct {
	// ReceptionNumber is the transfer destination. Empty disables transfer.
	ReceptionNumber string
	// ReceptionSpoken is read out when transfer is disabled.
	ReceptionSpoken string
	// CallerID is presented on transferred calls.
	CallerID   string
	MaxMisses  int
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReceptionSpoken == "" {
		c.ReceptionSpoken = defaultReceptionSpoken
	}
	if c.MaxMisses <= 0 {
		c.MaxMisses = DefaultMaxMisses
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	return c
}

// Dialog processes one conversational turn.
type Dialog interface {
	Process(ctx context.Context, m core.Message) (pkg.ChatResponse, error)
}

// Appointments looks up the appointment mentioned in a caller greeting.
type Appointments interface {
	NextScheduledAppointment(ctx context.Context, patientID int64) (*pkg.Appointment, error)
}

// TurnEvent is one gathered input from the caller.
type TurnEvent struct {
	CallID     string
	Speech     string
	Confidence float64
	Digits     string
}

type entry struct {
	call Call
	// ctx is cancelled when the call ends.
	ctx    context.Context
	cancel context.CancelFunc
}

// Machine is the process-wide call table.
type Machine struct {
	sessions *session.Store
	auth     *auth.Authenticator
	dialog   Dialog
	appts    Appointments
	cfg      Config
	metrics  *metrics.Collector
	log      logrus.FieldLogger
	now      func() time.Time

	mu    sync.Mutex
	calls map[string]*entry
}

// Option configures a Machine.
type Option func(*Machine)

// WithMetrics records call counters and durations.
func WithMetrics(m *metrics.Collector) Option {
	return func(mc *Machine) { mc.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(mc *Machine) { mc.now = now }
}

// NewMachine builds a call table. appts may be nil.
func NewMachine(sessions *session.Store, authn *auth.Authenticator, dialog Dialog, appts Appointments,
	cfg Config, log logrus.FieldLogger, opts ...Option) *Machine {
	m := &Machine{
		sessions: sessions,
		auth:     authn,
		dialog:   dialog,
		appts:    appts,
		cfg:      cfg.withDefaults(),
		log:      log.WithField("component", "voice"),
		now:      time.Now,
		calls:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers a new call from the given calling number, attempts a
// caller-ID login and returns the greeting.
func (m *Machine) Start(ctx context.Context, callID, from string) Response {
	log := m.log.WithField("call_id", callID)
	m.metrics.Inc(metrics.VoiceCallsTotal)

	now := m.now()
	sess := m.sessions.ResolveOrCreate("")
	call := Call{
		ID:         callID,
		SessionID:  sess.ID,
		State:      Greeting,
		From:       from,
		Level:      pkg.LevelGuest,
		StartedAt:  now,
		LastActive: now,
	}

	phone := ExtractPhoneNumber(from)
	var appt *pkg.Appointment
	if len(phone) == 10 {
		v, ok, err := m.auth.CallerID(ctx, phone)
		switch {
		case err != nil:
			log.WithError(err).Warn("caller id lookup failed")
		case ok:
			if _, err := m.sessions.Escalate(sess.ID, v); err != nil {
				log.WithError(err).Warn("caller id escalation failed")
				break
			}
			p := v.Patient()
			call.Level = pkg.LevelRegistered
			call.Verified = true
			call.PatientID = p.ID
			call.PatientName = p.Name
			appt = m.nextAppointment(ctx, log, p.ID)
			log.Info("caller auto-login")
		}
	}
	call.State = MainLoop

	ctxCall, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	old, restarted := m.calls[callID]
	m.calls[callID] = &entry{call: call, ctx: ctxCall, cancel: cancel}
	active := len(m.calls)
	m.mu.Unlock()
	if restarted {
		old.cancel()
		m.sessions.End(old.call.SessionID)
	}
	m.metrics.SetGauge(metrics.ActiveCalls, float64(active))

	log.WithFields(logrus.Fields{"session_id": sess.ID, "verified": call.Verified}).Info("call started")

	var r Response
	r.add(Pause{Seconds: 1})
	r.add(gatherSpeech(ActionRespond, greeting(call, phone, appt)).Instructions...)
	return r
}

func (m *Machine) nextAppointment(ctx context.Context, log logrus.FieldLogger, patientID int64) *pkg.Appointment {
	if m.appts == nil {
		return nil
	}
	appt, err := m.appts.NextScheduledAppointment(ctx, patientID)
	if err != nil {
		if !errors.Is(err, pkg.ErrNotFound) {
			log.WithError(err).Warn("next appointment lookup failed")
		}
		return nil
	}
	return appt
}

func greeting(call Call, phone string, appt *pkg.Appointment) string {
	if call.Verified {
		var b strings.Builder
		fmt.Fprintf(&b, "Welcome back to City General Hospital, %s.", call.PatientName)
		if appt != nil {
			fmt.Fprintf(&b, " I see you have an appointment with %s on %s at %s.", appt.Doctor, appt.Date, appt.TimeSlot)
		}
		b.WriteString(" I'm your AI assistant. How can I help you today?")
		return b.String()
	}
	text := "Welcome to City General Hospital. I am your AI assistant. " +
		"I can help you with department information, OPD timings, doctor schedules, and much more. "
	if len(phone) == 10 {
		text += "If you are a registered patient and would like to access your appointments, " +
			"reports, or billing, press 1 or say 'login'. "
	}
	return text + "How can I help you today?"
}

// HandleTurn advances the call by one gathered input. Unknown calls get a
// closing line and a hangup.
func (m *Machine) HandleTurn(ctx context.Context, ev TurnEvent) Response {
	m.mu.Lock()
	e, ok := m.calls[ev.CallID]
	if !ok {
		m.mu.Unlock()
		return farewell(expiredText)
	}
	e.call.Turns++
	e.call.LastActive = m.now()
	call := e.call
	m.mu.Unlock()

	log := m.log.WithFields(logrus.Fields{
		"call_id":    call.ID,
		"session_id": call.SessionID,
		"state":      call.State,
		"turn":       call.Turns,
	})

	switch call.State {
	case AwaitingLoginPhone:
		return m.loginPhone(ctx, log, e, ev)
	case AwaitingOTP:
		return m.verifyOTP(ctx, log, e, ev)
	case Goodbye:
		return m.goodbye(call.ID)
	default:
		return m.mainLoop(log, e, call, ev)
	}
}

func (m *Machine) mainLoop(log logrus.FieldLogger, e *entry, call Call, ev TurnEvent) Response {
	speech := strings.TrimSpace(ev.Speech)

	switch Classify(speech, ev.Digits) {
	case LoginIntent:
		if call.Verified {
			m.resetMisses(e)
			return gatherSpeech(ActionRespond,
				fmt.Sprintf("You're already logged in as %s. How can I help you?", call.PatientName))
		}
		if !m.transition(e, AwaitingLoginPhone) {
			return m.goodbye(ev.CallID)
		}
		log.Info("login requested")
		return gatherSpeech(ActionLoginInput, loginText)
	case TransferIntent:
		return m.transfer(log, e)
	case HangupIntent:
		return m.goodbye(ev.CallID)
	}

	if speech == "" || (ev.Confidence > 0 && ev.Confidence < LowConfidence) {
		prompt := silenceText
		if speech != "" {
			prompt = repeatText
		}
		if m.miss(e) >= m.cfg.MaxMisses {
			log.Info("too many missed turns")
			return m.goodbye(ev.CallID)
		}
		return gatherSpeech(ActionRespond, prompt)
	}
	m.resetMisses(e)

	// The pipeline runs on the call context, without the table lock.
	resp, err := m.dialog.Process(e.ctx, core.Message{Text: speech, SessionID: call.SessionID, Channel: pkg.ChannelVoice})

	m.mu.Lock()
	if cur, ok := m.calls[ev.CallID]; !ok || cur != e {
		m.mu.Unlock()
		log.Info("call ended during turn, reply discarded")
		return farewell(expiredText)
	}
	if err == nil {
		e.call.SessionID = resp.SessionID
		e.call.Level = resp.UserType
		e.call.Verified = resp.Verified
	}
	m.mu.Unlock()

	switch {
	case errors.Is(err, session.ErrNotFound):
		log.WithError(err).Warn("session lost")
		m.End(ev.CallID)
		return farewell(expiredText)
	case err != nil:
		log.WithError(err).Error("dialog failed")
		return gatherSpeech(ActionRespond, troubleText)
	}

	reply := core.TruncateForVoice(core.CleanForVoice(resp.Reply))
	log.WithField("reply_len", utf8.RuneCountInString(reply)).Debug("voice reply")
	return gatherSpeech(ActionRespond, reply)
}

func (m *Machine) loginPhone(ctx context.Context, log logrus.FieldLogger, e *entry, ev TurnEvent) Response {
	heard := strings.TrimSpace(ev.Speech)
	if heard == "" {
		heard = strings.TrimSpace(ev.Digits)
	}
	phone := ExtractPhoneNumber(heard)
	if len(phone) != 10 {
		return gatherSpeech(ActionLoginInput,
			fmt.Sprintf("I heard '%s', but I need a 10-digit phone number. Please try again.", heard))
	}

	_, err := m.auth.StartLogin(ctx, phone)
	if err != nil {
		reason := "I couldn't look up that phone number right now."
		if errors.Is(err, auth.ErrNotRegistered) {
			reason = "This phone number is not registered. Please visit the hospital to register."
		} else {
			log.WithError(err).Warn("login lookup failed")
		}
		m.transition(e, MainLoop)
		var r Response
		r.add(Say{Text: reason + " Let me help you with general information instead."})
		r.add(gatherSpeech(ActionRespond, "What would you like to know?").Instructions...)
		return r
	}

	m.mu.Lock()
	e.call.LoginPhone = phone
	m.mu.Unlock()
	m.transition(e, AwaitingOTP)
	log.Info("passcode issued")
	return gatherOTP(otpPromptText)
}

func (m *Machine) verifyOTP(ctx context.Context, log logrus.FieldLogger, e *entry, ev TurnEvent) Response {
	code := onlyDigits(ev.Digits)
	if len(code) != otpDigits {
		return gatherOTP(otpRetryText)
	}

	m.mu.Lock()
	phone := e.call.LoginPhone
	sessionID := e.call.SessionID
	m.mu.Unlock()

	v, outcome, err := m.auth.CompleteLogin(ctx, phone, code)
	if err != nil {
		log.WithError(err).Warn("passcode login failed")
		m.transition(e, MainLoop)
		var r Response
		r.add(Say{Text: "I couldn't complete the login. Let me help you with general information instead."})
		r.add(gatherSpeech(ActionRespond, "What would you like to know?").Instructions...)
		return r
	}
	if outcome != auth.Verified {
		log.WithField("outcome", outcome).Info("passcode denied")
		return gatherOTP(outcome.Message() + " Please try entering the OTP again.")
	}

	sess, err := m.sessions.Escalate(sessionID, v)
	if errors.Is(err, session.ErrNotFound) {
		sess = m.sessions.ResolveOrCreate("")
		sess, err = m.sessions.Escalate(sess.ID, v)
	}
	if err != nil {
		log.WithError(err).Error("escalation failed")
		return gatherSpeech(ActionRespond, troubleText)
	}

	p := v.Patient()
	m.mu.Lock()
	e.call.SessionID = sess.ID
	e.call.Level = sess.Level
	e.call.Verified = true
	e.call.PatientID = p.ID
	e.call.PatientName = p.Name
	e.call.LoginPhone = ""
	m.mu.Unlock()
	m.transition(e, MainLoop)
	log.Info("caller verified")

	return gatherSpeech(ActionRespond, fmt.Sprintf(
		"You're now logged in as %s. You can now ask about your appointments, lab reports, or billing. How can I help you?",
		p.Name))
}

func (m *Machine) transfer(log logrus.FieldLogger, e *entry) Response {
	if m.cfg.ReceptionNumber == "" {
		log.Info("transfer requested without a reception number")
		m.resetMisses(e)
		var r Response
		r.add(Say{Text: "I'd be happy to connect you with our staff. Please call our reception directly at " +
			m.cfg.ReceptionSpoken + ". They will be able to assist you further. Is there anything else I can help you with?"})
		r.add(gatherSpeech(ActionRespond, "").Instructions...)
		return r
	}

	m.transition(e, Goodbye)
	log.Info("transferring to reception")
	var r Response
	r.add(
		Say{Text: holdText},
		Dial{Number: m.cfg.ReceptionNumber, CallerID: m.cfg.CallerID, Timeout: dialTimeout},
		Say{Text: busyText},
		Hangup{},
	)
	m.End(e.call.ID)
	return r
}

func (m *Machine) goodbye(callID string) Response {
	m.mu.Lock()
	if e, ok := m.calls[callID]; ok {
		e.call.State = Goodbye
	}
	m.mu.Unlock()
	m.End(callID)
	return farewell(goodbyeText)
}

// transition moves the call to next when the move is legal.
func (m *Machine) transition(e *entry, next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !e.call.State.CanTransition(next) {
		m.log.WithFields(logrus.Fields{"call_id": e.call.ID, "from": e.call.State, "to": next}).
			Warn("illegal call transition")
		return false
	}
	e.call.State = next
	return true
}

func (m *Machine) miss(e *entry) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.call.Misses++
	return e.call.Misses
}

func (m *Machine) resetMisses(e *entry) {
	m.mu.Lock()
	e.call.Misses = 0
	m.mu.Unlock()
}

// End destroys the call and its session. Dialog turns still running for the
// call complete, but their replies are discarded.
func (m *Machine) End(callID string) {
	m.mu.Lock()
	e, ok := m.calls[callID]
	if ok {
		delete(m.calls, callID)
	}
	active := len(m.calls)
	m.mu.Unlock()
	if !ok {
		return
	}
	e.cancel()
	m.sessions.End(e.call.SessionID)
	m.metrics.SetGauge(metrics.ActiveCalls, float64(active))
	m.log.WithFields(logrus.Fields{"call_id": callID, "turns": e.call.Turns}).Info("call ended")
}

// Status applies a call lifecycle notification. Terminal statuses end the
// call; completed calls record their duration and failed calls are counted.
func (m *Machine) Status(callID, status string, duration time.Duration) {
	switch status {
	case "completed", "failed", "busy", "no-answer", "canceled":
	default:
		return
	}
	m.End(callID)
	switch status {
	case "completed":
		m.metrics.Observe(metrics.VoiceCallDuration, duration.Seconds())
	case "failed":
		m.metrics.Inc(metrics.VoiceCallsFailed)
	}
}

// Get returns a snapshot of the call.
func (m *Machine) Get(callID string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[callID]
	if !ok {
		return Call{}, ErrCallNotFound
	}
	return e.call, nil
}

// Len returns the number of active calls.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CleanupStale ends calls idle for longer than maxAge, or the configured
// StaleAfter when maxAge is not positive. It returns the number ended.
func (m *Machine) CleanupStale(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = m.cfg.StaleAfter
	}
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	var stale []string
	for id, e := range m.calls {
		if e.call.LastActive.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.End(id)
	}
	return len(stale)
}

// Package auth issues and verifies one-time passcodes bound to a phone
// number and produces the Verification proof required to escalate a session.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hospital-assistant/pkg"
)

// DefaultTTL is the passcode lifetime.
const DefaultTTL = 300 * time.Second

var (
	// ErrNotRegistered is returned when no patient owns the phone number.
	ErrNotRegistered = errors.New("phone number not registered")
	// ErrNotVerified is returned when an empty Verification is presented.
	ErrNotVerified = errors.New("identity not verified")
)

// Outcome is the result of a passcode check.
type Outcome int

const (
	Verified Outcome = iota
	NoPending
	Expired
	Mismatch
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case NoPending:
		return "no_pending"
	case Expired:
		return "expired"
	case Mismatch:
		return "mismatch"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Message is the user-facing sentence for the outcome.
func (o Outcome) Message() string {
	switch o {
	case Verified:
		return "OTP verified successfully."
	case NoPending:
		return "No OTP was requested for this number. Please request a new OTP."
	case Expired:
		return "OTP has expired. Please request a new one."
	default:
		return "Invalid OTP. Please check and try again."
	}
}

// Directory looks up registered patients. FindPatientByPhone reports an
// unregistered number with pkg.ErrNotFound (or a nil patient).
type Directory interface {
	FindPatientByPhone(ctx context.Context, phone string) (*pkg.Patient, error)
}

// Verification proves that a phone number was verified for a patient. Only
// this package can construct a non-zero value.
type Verification struct {
	patient pkg.Patient
	phone   string
	at      time.Time
}

// Patient returns the verified patient.
func (v Verification) Patient() pkg.Patient { return v.patient }

// Phone returns the verified phone number.
func (v Verification) Phone() string { return v.phone }

// At returns when the verification happened.
func (v Verification) At() time.Time { return v.at }

type pending struct {
	code    string
	expires time.Time
}

// Authenticator holds at most one pending passcode per phone number.
type Authenticator struct {
	dir      Directory
	notifier Notifier
	log      *logrus.Logger
	random   io.Reader
	now      func() time.Time
	pending  map[string]pending
	ttl      time.Duration
	mu       sync.Mutex
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithRandom replaces crypto/rand as the passcode source.
func WithRandom(r io.Reader) Option {
	return func(a *Authenticator) { a.random = r }
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(log *logrus.Logger) Option {
	return func(a *Authenticator) { a.log = log }
}

// New returns an Authenticator backed by dir. A nil notifier discards
// passcode events.
func New(dir Directory, notifier Notifier, opts ...Option) *Authenticator {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	a := &Authenticator{
		dir:      dir,
		notifier: notifier,
		log:      logrus.StandardLogger(),
		random:   rand.Reader,
		now:      time.Now,
		pending:  make(map[string]pending),
		ttl:      DefaultTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue generates a passcode for phone, replacing any pending one, and hands
// it to the notifier. Delivery failures are logged, not returned.
func (a *Authenticator) Issue(ctx context.Context, phone string) (string, error) {
	n, err := rand.Int(a.random, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate passcode: %w", err)
	}
	code := fmt.Sprintf("%06d", 100000+n.Int64())
	expires := a.now().Add(a.ttl)

	a.mu.Lock()
	a.pending[phone] = pending{code: code, expires: expires}
	a.mu.Unlock()

	event := PasscodeIssued{Phone: phone, Code: code, ExpiresAt: expires}
	if err := a.notifier.PasscodeIssued(ctx, event); err != nil {
		a.log.WithError(err).WithField("phone", phone).Warn("passcode delivery failed")
	}
	return code, nil
}

// Verify checks code against the pending passcode for phone. The passcode
// is consumed on success and on expiry; a mismatch leaves it in place.
func (a *Authenticator) Verify(phone, code string) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[phone]
	if !ok {
		return NoPending
	}
	if a.now().After(p.expires) {
		delete(a.pending, phone)
		return Expired
	}
	if p.code != code {
		return Mismatch
	}
	delete(a.pending, phone)
	return Verified
}

// Pending reports whether phone has an outstanding passcode.
func (a *Authenticator) Pending(phone string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[phone]
	return ok
}

// ExpireSweep drops every expired passcode.
func (a *Authenticator) ExpireSweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	removed := 0
	for phone, p := range a.pending {
		if now.After(p.expires) {
			delete(a.pending, phone)
			removed++
		}
	}
	return removed
}

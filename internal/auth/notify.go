package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// PasscodeIssued is emitted every time a passcode is generated.
type PasscodeIssued struct {
	Phone     string    `json:"phone"`
	Code      string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier delivers passcodes out of band.
type Notifier interface {
	PasscodeIssued(ctx context.Context, ev PasscodeIssued) error
}

// NoopNotifier discards events.
type NoopNotifier struct{}

func (NoopNotifier) PasscodeIssued(context.Context, PasscodeIssued) error { return nil }

// LogNotifier writes the passcode to the log. Development only.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) PasscodeIssued(_ context.Context, ev PasscodeIssued) error {
	n.Log.WithFields(logrus.Fields{
		"code":       ev.Code,
		"expires_at": ev.ExpiresAt.Format(time.RFC3339),
	}).Info("passcode issued")
	return nil
}

// MultiNotifier fans an event out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) PasscodeIssued(ctx context.Context, ev PasscodeIssued) error {
	var errs []error
	for _, n := range m {
		if err := n.PasscodeIssued(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

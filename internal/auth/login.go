package auth

import (
	"context"
	"errors"
	"fmt"

	"hospital-assistant/pkg"
)

// Challenge describes an issued passcode login.
type Challenge struct {
	Phone       string
	MaskedPhone string
	PatientName string
}

// StartLogin issues a passcode when phone belongs to a registered patient.
func (a *Authenticator) StartLogin(ctx context.Context, phone string) (Challenge, error) {
	p, err := a.lookup(ctx, phone)
	if err != nil {
		return Challenge{}, err
	}
	if p == nil {
		return Challenge{}, ErrNotRegistered
	}
	if _, err := a.Issue(ctx, phone); err != nil {
		return Challenge{}, err
	}
	return Challenge{Phone: phone, MaskedPhone: MaskPhone(phone), PatientName: p.Name}, nil
}

// CompleteLogin checks the passcode and, on success, resolves the patient
// that owns phone. The Verification is only meaningful when the outcome is
// Verified and err is nil.
func (a *Authenticator) CompleteLogin(ctx context.Context, phone, code string) (Verification, Outcome, error) {
	outcome := a.Verify(phone, code)
	if outcome != Verified {
		return Verification{}, outcome, nil
	}
	p, err := a.lookup(ctx, phone)
	if err != nil {
		return Verification{}, outcome, err
	}
	if p == nil {
		return Verification{}, outcome, ErrNotRegistered
	}
	return Verification{patient: *p, phone: phone, at: a.now()}, outcome, nil
}

// CallerID trusts a telephony-supplied caller number. It reports false when
// the number is not registered.
func (a *Authenticator) CallerID(ctx context.Context, phone string) (Verification, bool, error) {
	p, err := a.lookup(ctx, phone)
	if err != nil {
		return Verification{}, false, err
	}
	if p == nil {
		return Verification{}, false, nil
	}
	return Verification{patient: *p, phone: phone, at: a.now()}, true, nil
}

func (a *Authenticator) lookup(ctx context.Context, phone string) (*pkg.Patient, error) {
	p, err := a.dir.FindPatientByPhone(ctx, phone)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup phone: %w", err)
	}
	return p, nil
}

// MaskPhone keeps the first and last three digits, e.g. 987****210.
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return phone
	}
	return phone[:3] + "****" + phone[len(phone)-3:]
}

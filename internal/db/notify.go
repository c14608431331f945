package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"hospital-assistant/internal/auth"
)

// Notifier announces passcode issuance with PostgreSQL NOTIFY. The payload
// carries the phone number and expiry; the code is delivered by
// broker.Publisher.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a Notifier. The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	return &Notifier{DB: db, Channel: channel}
}

type notifyPayload struct {
	Phone     string `json:"phone"`
	ExpiresAt string `json:"expires_at"`
}

// PasscodeIssued implements auth.Notifier.
func (n *Notifier) PasscodeIssued(ctx context.Context, ev auth.PasscodeIssued) error {
	payload, err := json.Marshal(notifyPayload{
		Phone:     ev.Phone,
		ExpiresAt: ev.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	channel := pq.QuoteIdentifier(n.Channel)
	if _, err := n.DB.ExecContext(ctx, fmt.Sprintf("NOTIFY %s, %s", channel, pq.QuoteLiteral(string(payload)))); err != nil {
		return fmt.Errorf("notify %s: %w", n.Channel, err)
	}
	return nil
}

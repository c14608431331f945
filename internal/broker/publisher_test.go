package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-assistant/internal/auth"
)

type fakeChannel struct {
	declared   []string
	kinds      []string
	published  []amqp.Publishing
	declareErr error
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	f.declared = append(f.declared, name)
	f.kinds = append(f.kinds, kind)
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

var _ auth.Notifier = (*Publisher)(nil)

func TestPasscodeIssuedPublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "")
	assert.Equal(t, DefaultExchange, p.Exchange())

	expires := time.Date(2026, 2, 10, 9, 5, 0, 0, time.UTC)
	require.NoError(t, p.PasscodeIssued(context.Background(), auth.PasscodeIssued{Phone: "9876543210", Code: "123456", ExpiresAt: expires}))
	require.NoError(t, p.PasscodeIssued(context.Background(), auth.PasscodeIssued{Phone: "9876543211", Code: "654321", ExpiresAt: expires}))

	assert.Equal(t, []string{DefaultExchange}, ch.declared, "exchange is declared once")
	assert.Equal(t, []string{amqp.ExchangeFanout}, ch.kinds)
	require.Len(t, ch.published, 2)

	var msg otpMessage
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &msg))
	assert.Equal(t, otpMessage{Phone: "9876543210", OTP: "123456", ExpiresAt: "2026-02-10T09:05:00Z"}, msg)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	p.Close()
	assert.True(t, ch.closed)
}

func TestPublishErrors(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	p := NewPublisher(ch, "otp")
	err := p.Publish([]byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declare exchange otp")

	ch.declareErr = nil
	ch.publishErr = amqp.ErrClosed
	err = p.Publish([]byte(`{}`))
	assert.ErrorIs(t, err, amqp.ErrClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PasscodeIssued(ctx, auth.PasscodeIssued{}), context.Canceled)
}

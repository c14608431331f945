// Package broker publishes passcode deliveries to a RabbitMQ fanout
// exchange, where an SMS gateway consumes them.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"hospital-assistant/internal/auth"
)

// DefaultExchange is used when no exchange name is configured.
const DefaultExchange = "otp.delivery"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends JSON messages to a durable fanout exchange. It is safe for
// concurrent use.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string

	mu       sync.Mutex
	declared bool
}

// Dial connects to RabbitMQ and opens a channel.
func Dial(amqpURL, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p := NewPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an open channel.
func NewPublisher(ch Channel, exchange string) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Publisher{channel: ch, exchange: exchange}
}

// Exchange returns the exchange name.
func (p *Publisher) Exchange() string { return p.exchange }

// Publish declares the exchange on first use and publishes body.
func (p *Publisher) Publish(body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
		}
		p.declared = true
	}
	err := p.channel.Publish(p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.exchange, err)
	}
	return nil
}

type otpMessage struct {
	Phone     string `json:"phone"`
	OTP       string `json:"otp"`
	ExpiresAt string `json:"expires_at"`
}

// PasscodeIssued implements auth.Notifier.
func (p *Publisher) PasscodeIssued(ctx context.Context, ev auth.PasscodeIssued) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(otpMessage{
		Phone:     ev.Phone,
		OTP:       ev.Code,
		ExpiresAt: ev.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return p.Publish(body)
}

// Close closes the channel and the connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

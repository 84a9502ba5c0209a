package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easytips/easytips/pkg/logger"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Session events
	SessionCreated = "session.created"
	SessionRevoked = "session.revoked"

	// Payment events
	TipInitiated  = "tip.initiated"
	TipCompleted  = "tip.completed"
	TipFailed     = "tip.failed"
	PayoutCreated = "payout.created"

	// Notification events
	NotifySend = "notify.send"
)

// Event payloads
type SessionCreatedEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type TipInitiatedEvent struct {
	TransactionID     string          `json:"transaction_id"`
	EmployeeID        string          `json:"employee_id"`
	Amount            decimal.Decimal `json:"amount"`
	CheckoutSessionID string          `json:"checkout_session_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

type TipCompletedEvent struct {
	TransactionID   string          `json:"transaction_id"`
	EmployeeID      string          `json:"employee_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentIntentID string          `json:"payment_intent_id"`
	CompletedAt     time.Time       `json:"completed_at"`
}

type TipFailedEvent struct {
	TransactionID   string    `json:"transaction_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	FailedAt        time.Time `json:"failed_at"`
}

type PayoutCreatedEvent struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	CreatedAt     time.Time       `json:"created_at"`
}

type NotificationEvent struct {
	Recipient string                 `json:"recipient"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"bank-ledger/internal/domain"
)

// Routing keys on the topic exchange, one per committed operation kind.
const (
	routingKeyEntryCompleted    = "bank.operations.entry.completed"
	routingKeyTransferCompleted = "bank.operations.transfer.completed"
)

// Publisher emits committed-operation events to a RabbitMQ topic exchange.
// It implements domain.EventPublisher. Publishing happens after the ledger
// transaction has committed and is best-effort; consumers must tolerate
// missing events.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewPublisher connects to RabbitMQ and declares the topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
	}, nil
}

// recordEvent is the wire shape of one transaction record.
type recordEvent struct {
	RecordID    string `json:"record_id"`
	AccountID   string `json:"account_id"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// transferEvent carries both sides of a committed transfer.
type transferEvent struct {
	Amount string      `json:"amount"`
	Out    recordEvent `json:"transfer_out"`
	In     recordEvent `json:"transfer_in"`
}

// PublishEntryCompleted emits an event for a committed deposit or
// withdrawal.
func (p *Publisher) PublishEntryCompleted(ctx context.Context, rec *domain.TransactionRecord) error {
	return p.publish(ctx, routingKeyEntryCompleted, toRecordEvent(rec))
}

// PublishTransferCompleted emits an event carrying both records of a
// committed transfer.
func (p *Publisher) PublishTransferCompleted(ctx context.Context, out, in *domain.TransactionRecord) error {
	return p.publish(ctx, routingKeyTransferCompleted, transferEvent{
		Amount: out.Amount.StringFixed(2),
		Out:    toRecordEvent(out),
		In:     toRecordEvent(in),
	})
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func toRecordEvent(rec *domain.TransactionRecord) recordEvent {
	return recordEvent{
		RecordID:    rec.ID.String(),
		AccountID:   rec.AccountID.String(),
		Kind:        string(rec.Kind),
		Amount:      rec.Amount.StringFixed(2),
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

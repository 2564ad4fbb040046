package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/application"
	"github.com/dmehra2102/storefront-checkout/pkg/tracing"
)

const (
	EventCheckoutSnapshot = "checkout.snapshot"
	EventCheckpoint       = "checkout.checkpoint"
	EventCartClear        = "cart.clear"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Topics struct {
	Recovery      string
	Notifications string
	CartCommands  string
}

// Publisher sends checkout side effects that have no caller waiting on them:
// recovery snapshots, notification checkpoints and cart clear commands.
type Publisher struct {
	log    *slog.Logger
	writer MessageWriter
	topics Topics
	now    func() time.Time
}

func NewPublisher(log *slog.Logger, writer MessageWriter, topics Topics) *Publisher {
	return &Publisher{log: log, writer: writer, topics: topics, now: time.Now}
}

func (p *Publisher) Snapshot(ctx context.Context, s application.RecoverySnapshot) error {
	return p.publish(ctx, p.topics.Recovery, s.SessionID, EventCheckoutSnapshot, s)
}

func (p *Publisher) Notify(ctx context.Context, n application.Notification) error {
	return p.publish(ctx, p.topics.Notifications, n.SessionID, EventCheckpoint, n)
}

type cartClear struct {
	Owner       string    `json:"owner"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (p *Publisher) Clear(ctx context.Context, owner string) error {
	return p.publish(ctx, p.topics.CartCommands, owner, EventCartClear, cartClear{Owner: owner, RequestedAt: p.now().UTC()})
}

func (p *Publisher) publish(ctx context.Context, topic, key, eventType string, v any) error {
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(eventType)},
		{Key: "source", Value: []byte("checkout-service")},
	}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
		Time:    p.now(),
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, topic, err)
	}
	p.log.Debug("checkout event published", "topic", topic, "event_type", eventType, "key", key)
	return nil
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront-checkout/internal/payment/application"
	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/tracing"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type StatusApplier interface {
	Apply(ctx context.Context, ev domain.StatusReported) error
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

const (
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
	releaseTimeout    = 2 * time.Second
)

// Consumer applies payment status webhooks relayed onto the broker.
type Consumer struct {
	log    *slog.Logger
	reader MessageReader
	svc    StatusApplier
	idem   Deduper
	tracer trace.Tracer
	delay  time.Duration
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader MessageReader, svc StatusApplier, idem Deduper) *Consumer {
	return &Consumer{
		log:    log,
		reader: reader,
		svc:    svc,
		idem:   idem,
		tracer: otel.Tracer("payment-status-consumer"),
		delay:  defaultRetryDelay,
	}
}

// WithRetryDelay sets the first backoff between failed applies of one message.
func (c *Consumer) WithRetryDelay(d time.Duration) *Consumer {
	c.delay = d
	return c
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		// Left uncommitted so the message is redelivered.
		c.log.Error("idempotency check failed", "key", key, "err", err)
		return
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		_ = c.reader.CommitMessages(ctx, msg)
		return
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentStatus")
	defer span.End()

	var event domain.StatusReported
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.log.Error("unmarshal failed", "key", key, "err", err)
		_ = c.reader.CommitMessages(ctx, msg)
		return
	}
	if event.EventID == "" {
		event.EventID = tracing.HeaderValue(msg.Headers, "event_id")
	}

	if err := c.apply(msgCtx, event); err != nil {
		span.RecordError(err)
		if !application.IsPermanent(err) {
			// Not committed and forgotten, so the redelivered copy is applied.
			c.release(ctx, key)
			return
		}
		c.log.Error("payment status dropped", "tx_id", event.ProviderTxID, "status", event.Status, "err", err)
	}
	_ = c.reader.CommitMessages(ctx, msg)
}

// apply retries transient failures with backoff until it succeeds, the error is
// permanent, or ctx ends.
func (c *Consumer) apply(ctx context.Context, event domain.StatusReported) error {
	delay := c.delay
	for {
		err := c.svc.Apply(ctx, event)
		if err == nil || application.IsPermanent(err) {
			return err
		}
		c.log.Warn("payment status apply failed, retrying", "tx_id", event.ProviderTxID, "status", event.Status, "retry_in", delay, "err", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (c *Consumer) release(ctx context.Context, key string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := c.idem.Release(rctx, key); err != nil {
		c.log.Error("idempotency release failed", "key", key, "err", err)
	}
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/application"
	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/tracing"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func newPublisher(w MessageWriter) *Publisher {
	return NewPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)), w, Topics{
		Recovery:      "checkout.recovery",
		Notifications: "checkout.notifications",
		CartCommands:  "cart.commands",
	})
}

func TestPublisher_Snapshot(t *testing.T) {
	w := &captureWriter{}
	p := newPublisher(w)

	err := p.Snapshot(context.Background(), application.RecoverySnapshot{
		SessionID: "s-1",
		Step:      domain.StepShipping,
		Lines:     []domain.CartLine{{ProductID: "p-1", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "checkout.recovery", m.Topic)
	assert.Equal(t, "s-1", string(m.Key))
	assert.Equal(t, EventCheckoutSnapshot, tracing.HeaderValue(m.Headers, "event_type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(m.Value, &body))
	assert.Equal(t, "shipping", body["stepName"])
}

func TestPublisher_NotifyAndClear(t *testing.T) {
	w := &captureWriter{}
	p := newPublisher(w)

	require.NoError(t, p.Notify(context.Background(), application.Notification{
		Checkpoint: application.CheckpointPurchaseConfirmed, SessionID: "s-1", ValueMinor: 10800,
	}))
	require.NoError(t, p.Clear(context.Background(), "owner-1"))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "checkout.notifications", w.msgs[0].Topic)
	assert.Equal(t, "cart.commands", w.msgs[1].Topic)
	assert.Equal(t, "owner-1", string(w.msgs[1].Key))
	assert.Equal(t, EventCartClear, tracing.HeaderValue(w.msgs[1].Headers, "event_type"))
}

func TestPublisher_WriteError(t *testing.T) {
	p := newPublisher(&captureWriter{err: errors.New("broker down")})
	err := p.Clear(context.Background(), "owner-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cart.commands")
}

func TestPublisher_EmptyTopicIsNoop(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)), w, Topics{})
	require.NoError(t, p.Clear(context.Background(), "owner-1"))
	assert.Empty(t, w.msgs)
}

package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	events   []Event
	sent     []int64
	failed   map[int64]string
	extended int
}

func (s *memStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) > batchSize {
		out := s.events[:batchSize]
		s.events = s.events[batchSize:]
		return out, nil
	}
	out := s.events
	s.events = nil
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

func (s *memStore) ExtendLease(context.Context, string, []int64, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extended++
	return nil
}

type memProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	failOn string
}

func (p *memProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if string(m.Key) == p.failOn {
			return errors.New("broker unavailable")
		}
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatcher_RoutesByTypeAndSetsHeaders(t *testing.T) {
	p := &memProducer{}
	d := NewDispatcher(discard(), p, "order.events").Route("CheckoutStepReached", "checkout.recovery")

	require.NoError(t, d.Dispatch(context.Background(), Event{ID: 1, AggregateID: "o-1", Type: "OrderPlaced", Payload: []byte(`{}`), Traceparent: "00-abc-def-01"}))
	require.NoError(t, d.Dispatch(context.Background(), Event{ID: 2, AggregateID: "s-1", Type: "CheckoutStepReached", Headers: map[string]string{"source": "x"}}))

	require.Len(t, p.msgs, 2)
	assert.Equal(t, "order.events", p.msgs[0].Topic)
	assert.Equal(t, "checkout.recovery", p.msgs[1].Topic)
	assert.Equal(t, []byte("o-1"), p.msgs[0].Key)

	var gotType, gotTrace string
	for _, h := range p.msgs[0].Headers {
		switch h.Key {
		case "event_type":
			gotType = string(h.Value)
		case "traceparent":
			gotTrace = string(h.Value)
		}
	}
	assert.Equal(t, "OrderPlaced", gotType)
	assert.Equal(t, "00-abc-def-01", gotTrace)
}

func TestRelay_RunOnceMarksSentAndFailed(t *testing.T) {
	store := &memStore{events: []Event{
		{ID: 1, AggregateID: "a", Type: "OrderPlaced"},
		{ID: 2, AggregateID: "bad", Type: "OrderPlaced"},
		{ID: 3, AggregateID: "c", Type: "OrderPlaced"},
	}}
	p := &memProducer{failOn: "bad"}
	r := NewRelay(discard(), store, NewDispatcher(discard(), p, "order.events"), "relay-1")

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Contains(t, store.failed, int64(2))

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRelay_ExtendsLeaseOnSlowBatch(t *testing.T) {
	store := &memStore{events: []Event{{ID: 1, AggregateID: "a"}, {ID: 2, AggregateID: "b"}}}
	r := NewRelay(discard(), store, NewDispatcher(discard(), &memProducer{}, "t"), "relay-1")

	clock := time.Unix(0, 0)
	r.now = func() time.Time {
		clock = clock.Add(2 * time.Second)
		return clock
	}

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Positive(t, store.extended)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &memStore{events: []Event{{ID: 7, AggregateID: "a"}}}
	r := NewRelay(discard(), store, NewDispatcher(discard(), &memProducer{}, "t"), "relay-1").WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

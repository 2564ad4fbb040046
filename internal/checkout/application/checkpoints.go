package application

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Checkpoint string

const (
	CheckpointViewCheckoutStart = Checkpoint("view_checkout_start")
	CheckpointPaymentInfoAdded  = Checkpoint("payment_info_added")
	CheckpointPurchaseConfirmed = Checkpoint("purchase_confirmed")
)

const notifyTimeout = 5 * time.Second

type NotificationItem struct {
	ProductID  string `json:"id"`
	Quantity   int    `json:"quantity"`
	PriceMinor int64  `json:"priceMinorUnits"`
}

type Notification struct {
	Checkpoint Checkpoint         `json:"checkpoint"`
	SessionID  string             `json:"sessionId"`
	ValueMinor int64              `json:"valueMinorUnits"`
	Currency   string             `json:"currency"`
	ItemCount  int                `json:"itemCount"`
	Contents   []NotificationItem `json:"contents,omitempty"`
}

// Checkpoints sends each notification checkpoint at most once per session. Sends
// are asynchronous and their errors are only logged.
type Checkpoints struct {
	log  *slog.Logger
	sink NotificationSink

	mu    sync.Mutex
	fired map[Checkpoint]bool
	wg    sync.WaitGroup
}

func NewCheckpoints(log *slog.Logger, sink NotificationSink) *Checkpoints {
	return &Checkpoints{log: log, sink: sink, fired: make(map[Checkpoint]bool)}
}

func (c *Checkpoints) Fire(ctx context.Context, n Notification) bool {
	c.mu.Lock()
	if c.fired[n.Checkpoint] {
		c.mu.Unlock()
		return false
	}
	c.fired[n.Checkpoint] = true
	c.mu.Unlock()

	if c.sink == nil {
		return true
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := c.sink.Notify(nctx, n); err != nil {
			c.log.Debug("checkpoint notification failed", "checkpoint", n.Checkpoint, "err", err)
		}
	}()
	return true
}

func (c *Checkpoints) Fired(cp Checkpoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired[cp]
}

// Wait blocks until in-flight notifications are done.
func (c *Checkpoints) Wait() {
	c.wg.Wait()
}

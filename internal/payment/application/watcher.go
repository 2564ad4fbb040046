package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultSettleDelay  = 10 * time.Second
)

type WatcherConfig struct {
	Interval    time.Duration
	SettleDelay time.Duration
	// MaxWait bounds the poll. Zero polls until success or teardown.
	MaxWait time.Duration
}

type WatchCallbacks struct {
	OnConfirmed    func(ctx context.Context, txID, status string)
	OnSettled      func(ctx context.Context, txID string)
	OnStillPending func(ctx context.Context, txID string)
}

// Watcher polls the status of one instant transfer at a time. It is owned by a
// checkout session.
type Watcher struct {
	log    *slog.Logger
	source StatusSource
	cfg    WatcherConfig

	mu        sync.Mutex
	current   string
	cancel    context.CancelFunc
	done      chan struct{}
	confirmed map[string]bool
}

func NewWatcher(log *slog.Logger, source StatusSource, cfg WatcherConfig) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &Watcher{
		log:       log,
		source:    source,
		cfg:       cfg,
		confirmed: make(map[string]bool),
	}
}

// Watch starts polling txID and supersedes any previous watch. It returns false
// when txID is already confirmed or already being watched.
func (w *Watcher) Watch(ctx context.Context, txID string, cb WatchCallbacks) bool {
	w.mu.Lock()
	if w.confirmed[txID] || (w.current == txID && w.cancel != nil) {
		w.mu.Unlock()
		return false
	}
	if w.cancel != nil {
		w.log.Info("payment watch superseded", "tx_id", w.current, "by", txID)
		w.cancel()
	}
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	w.current, w.cancel, w.done = txID, cancel, done
	w.mu.Unlock()

	go w.run(wctx, txID, cb, done)
	return true
}

// Stop cancels the active watch and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) Confirmed(txID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.confirmed[txID]
}

func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Watcher) run(ctx context.Context, txID string, cb WatchCallbacks, done chan struct{}) {
	defer close(done)
	defer w.release(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if w.cfg.MaxWait > 0 {
		timer := time.NewTimer(w.cfg.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			w.log.Warn("payment still pending", "tx_id", txID, "max_wait", w.cfg.MaxWait)
			if cb.OnStillPending != nil {
				cb.OnStillPending(ctx, txID)
			}
			return
		case <-ticker.C:
			status, err := w.source.Status(ctx, txID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Warn("payment status poll failed", "tx_id", txID, "err", err)
				continue
			}
			if !domain.IsConfirmedStatus(status) {
				continue
			}
			ticker.Stop()
			if !w.markConfirmed(txID) {
				return
			}
			w.log.Info("payment confirmed", "tx_id", txID, "status", status)
			if cb.OnConfirmed != nil {
				cb.OnConfirmed(ctx, txID, status)
			}
			w.settle(ctx, txID, cb)
			return
		}
	}
}

func (w *Watcher) settle(ctx context.Context, txID string, cb WatchCallbacks) {
	if w.cfg.SettleDelay > 0 {
		t := time.NewTimer(w.cfg.SettleDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
	if cb.OnSettled != nil {
		cb.OnSettled(ctx, txID)
	}
}

func (w *Watcher) markConfirmed(txID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.confirmed[txID] || w.current != txID {
		return false
	}
	w.confirmed[txID] = true
	return true
}

func (w *Watcher) release(done chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == done {
		w.cancel()
		w.cancel, w.done = nil, nil
	}
}

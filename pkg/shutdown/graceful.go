package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()

	return ctx, cancel
}

// Step is one named teardown action.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Drain runs steps in order under one overall timeout. Failures are logged and do
// not stop later steps. It returns the number of failed steps.
func Drain(log *slog.Logger, timeout time.Duration, steps ...Step) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	failed := 0
	for _, s := range steps {
		if err := s.Fn(ctx); err != nil {
			failed++
			log.Error("shutdown step failed", "step", s.Name, "err", err)
			continue
		}
		log.Info("shutdown step done", "step", s.Name)
	}
	return failed
}

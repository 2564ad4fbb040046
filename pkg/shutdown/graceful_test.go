package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDrain_RunsEveryStepInOrder(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	var order []string
	step := func(name string, err error) Step {
		return Step{Name: name, Fn: func(ctx context.Context) error {
			order = append(order, name)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return err
		}}
	}

	failed := Drain(log, time.Second, step("http", nil), step("relay", errors.New("boom")), step("db", nil))
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"http", "relay", "db"}, order)
}

func TestWithSignals_ParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := WithSignals(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with parent")
	}
}

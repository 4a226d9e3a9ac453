package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"captionflow/internal/pkg/logger"
)

func TestShutdownRunsHandlersLIFO(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	var order []string
	for _, name := range []string{"redis", "queue", "consumers"} {
		mgr.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	mgr.Shutdown()

	want := []string{"consumers", "queue", "redis"}
	if len(order) != len(want) {
		t.Fatalf("expected %d handlers called, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestShutdownContinuesAfterFailure(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	var ranFirst bool
	mgr.RegisterSimple("first", func() { ranFirst = true })
	mgr.Register("failing", func(ctx context.Context) error { return errors.New("boom") })

	mgr.Shutdown()

	if !ranFirst {
		t.Error("expected handler registered before the failing one to run")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	calls := 0
	mgr.RegisterSimple("count", func() { calls++ })

	mgr.Shutdown()
	mgr.Shutdown()

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("expected done channel to be closed")
	}
}

func TestShutdownTimeoutSkipsRemaining(t *testing.T) {
	mgr := NewManager(logger.Discard(), 50*time.Millisecond)

	var ranLast bool
	mgr.RegisterSimple("last", func() { ranLast = true })
	mgr.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	mgr.Shutdown()

	if ranLast {
		t.Error("expected handlers after the deadline to be skipped")
	}
}

func TestContextCanceledAfterShutdown(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)
	ctx := mgr.Context()

	mgr.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("expected context to be canceled")
	}
}

func TestWaitWithContext(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mgr.WaitWithContext(ctx)

	select {
	case <-mgr.Done():
	default:
		t.Error("expected shutdown to have completed")
	}
}

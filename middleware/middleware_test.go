package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}
	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	err := middleware.Chain()(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	m := middleware.Recover(slog.Default())

	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		panic("model crashed")
	})

	var perr *middleware.PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if perr.Error() != "panic: model crashed" {
		t.Errorf("unexpected error message: %q", perr.Error())
	}
	if !strings.Contains(perr.Trace(), "goroutine") {
		t.Errorf("expected stack in trace, got %q", perr.Trace())
	}
	if job.IsPermanent(err) {
		t.Error("panics should be retryable")
	}

	f := job.NewFailure(err)
	if f.Trace != perr.Stack {
		t.Error("failure trace should be the panic stack")
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	m := middleware.Recover(slog.Default())
	want := errors.New("fail")
	err := m(context.Background(), newTestJob(), func(_ context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_Expires(t *testing.T) {
	m := middleware.Timeout(slog.Default(), 20*time.Millisecond)
	j := newTestJob()

	start := time.Now()
	err := m(context.Background(), j, func(_ context.Context) error {
		// Ignores ctx on purpose; the worker must still be released.
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	if time.Since(start) > 250*time.Millisecond {
		t.Fatal("timeout did not release the caller")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if job.IsPermanent(err) {
		t.Error("timeouts should be retryable")
	}
}

func TestTimeout_JobOverridesFallback(t *testing.T) {
	m := middleware.Timeout(slog.Default(), time.Hour)
	j := newTestJob()
	j.Timeout = 10 * time.Millisecond

	err := m(context.Background(), j, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTimeout_Disabled(t *testing.T) {
	m := middleware.Timeout(slog.Default(), 0)
	err := m(context.Background(), newTestJob(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_RecoversPanicOnHandlerGoroutine(t *testing.T) {
	m := middleware.Timeout(slog.Default(), time.Second)
	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		panic("boom")
	})
	var perr *middleware.PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	m := middleware.Logging(slog.Default())
	want := errors.New("fail")

	if err := m(context.Background(), newTestJob(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m(context.Background(), newTestJob(), func(_ context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

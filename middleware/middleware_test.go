package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/middleware"
	"github.com/taskgrid/taskgrid/task"
)

func sampleTask() *task.Task {
	return &task.Task{
		Entity:   taskgrid.NewEntity(),
		ID:       id.NewTaskID(),
		TypeName: "email.send",
		Status:   task.StatusClaimed,
		Attempts: 1,
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := chain(context.Background(), sampleTask(), handler); err != nil {
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
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	if err := chain(context.Background(), sampleTask(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	wantErr := errors.New("denied")
	blocking := func(_ context.Context, _ *task.Task, _ middleware.Handler) error {
		return wantErr
	}

	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := middleware.Chain(blocking)(context.Background(), sampleTask(), handler)
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if called {
		t.Error("handler called despite short circuit")
	}
}

func TestRecover(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	handler := func(_ context.Context) error {
		panic("boom")
	}

	err := mw(context.Background(), sampleTask(), handler)
	if err == nil {
		t.Fatal("expected error from panic, got nil")
	}
}

func TestRecover_NoPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	handler := func(_ context.Context) error { return nil }

	if err := mw(context.Background(), sampleTask(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogging_PassesThroughError(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	wantErr := errors.New("handler error")
	handler := func(_ context.Context) error { return wantErr }

	if err := mw(context.Background(), sampleTask(), handler); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestTimeout_Expires(t *testing.T) {
	mw := middleware.Timeout(10 * time.Millisecond)
	handler := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}

	err := mw(context.Background(), sampleTask(), handler)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_Disabled(t *testing.T) {
	mw := middleware.Timeout(0)
	handler := func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("deadline set despite zero timeout")
		}
		return nil
	}

	if err := mw(context.Background(), sampleTask(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

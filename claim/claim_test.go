package claim

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/store/memory"
	"github.com/taskgrid/taskgrid/task"
)

func seedTask(t *testing.T, s *memory.Store, typeName string, maxAttempts int) *task.Task {
	t.Helper()
	tk := &task.Task{
		Entity:      taskgrid.NewEntity(),
		ID:          id.NewTaskID(),
		TypeName:    typeName,
		Params:      json.RawMessage(`{}`),
		Status:      task.StatusPending,
		MaxAttempts: maxAttempts,
	}
	created, _, err := s.CreateTask(context.Background(), tk)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	return created
}

type captureHooks struct {
	mu           sync.Mutex
	reclaimed    []string
	retrying     []string
	deadLettered []string
}

func (h *captureHooks) EmitLeaseReclaimed(_ context.Context, t *task.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reclaimed = append(h.reclaimed, t.ID.String())
}

func (h *captureHooks) EmitTaskRetrying(_ context.Context, t *task.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retrying = append(h.retrying, t.ID.String())
}

func (h *captureHooks) EmitTaskDeadLettered(_ context.Context, t *task.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deadLettered = append(h.deadLettered, t.ID.String())
}

func TestClaimGrantsOwnership(t *testing.T) {
	t.Parallel()

	s := memory.New()
	created := seedTask(t, s, "email.send", 3)

	c := NewCoordinator(s, time.Minute)
	got, err := c.Claim(context.Background(), "email.send", "wkr-a")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if got.ID.String() != created.ID.String() {
		t.Errorf("claimed %s, want %s", got.ID, created.ID)
	}
	if got.Status != task.StatusClaimed {
		t.Errorf("Status = %q, want claimed", got.Status)
	}
	if got.ClaimedBy != "wkr-a" {
		t.Errorf("ClaimedBy = %q, want wkr-a", got.ClaimedBy)
	}
	if got.LeaseExpiresAt == nil {
		t.Fatal("LeaseExpiresAt = nil")
	}

	if _, err := c.Claim(context.Background(), "email.send", "wkr-b"); !errors.Is(err, taskgrid.ErrNoneAvailable) {
		t.Errorf("second Claim() error = %v, want ErrNoneAvailable", err)
	}
}

func TestClaimRequiresWorkerID(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(memory.New(), time.Minute)
	if _, err := c.Claim(context.Background(), "email.send", ""); err == nil {
		t.Error("Claim() with empty worker id succeeded")
	}
}

func TestClaimSweepsExpiredLeasesInline(t *testing.T) {
	t.Parallel()

	s := memory.New()
	seedTask(t, s, "email.send", 3)

	// Grant a lease so short it is already expired by the next claim.
	short := NewCoordinator(s, time.Nanosecond)
	first, err := short.Claim(context.Background(), "email.send", "wkr-a")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	hooks := &captureHooks{}
	c := NewCoordinator(s, time.Minute, WithHooks(hooks))
	second, err := c.Claim(context.Background(), "email.send", "wkr-b")
	if err != nil {
		t.Fatalf("Claim() after expiry error = %v", err)
	}
	if second.ID.String() != first.ID.String() {
		t.Errorf("reclaimed a different task: %s", second.ID)
	}
	if second.ClaimedBy != "wkr-b" {
		t.Errorf("ClaimedBy = %q, want wkr-b", second.ClaimedBy)
	}
	if second.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", second.Attempts)
	}

	if len(hooks.reclaimed) != 1 || len(hooks.retrying) != 1 {
		t.Errorf("hooks: reclaimed=%d retrying=%d, want 1/1", len(hooks.reclaimed), len(hooks.retrying))
	}

	// The original claimant's completion must be rejected as stale.
	if _, err := s.CompleteTask(context.Background(), first.ID, "wkr-a", true, nil, ""); !errors.Is(err, taskgrid.ErrStaleClaim) {
		t.Errorf("CompleteTask() error = %v, want ErrStaleClaim", err)
	}
}

func TestSweeperDeadLettersExhaustedLease(t *testing.T) {
	t.Parallel()

	s := memory.New()
	created := seedTask(t, s, "email.send", 1)

	short := NewCoordinator(s, time.Nanosecond)
	if _, err := short.Claim(context.Background(), "email.send", "wkr-a"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	hooks := &captureHooks{}
	sweeper := NewSweeper(s, time.Hour, WithSweeperHooks(hooks))
	sweeper.SweepOnce(context.Background())

	got, err := s.GetTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != task.StatusDeadLetter {
		t.Errorf("Status = %q, want dead_letter", got.Status)
	}
	if len(hooks.deadLettered) != 1 {
		t.Errorf("deadLettered hooks = %d, want 1", len(hooks.deadLettered))
	}
	if len(hooks.retrying) != 0 {
		t.Errorf("retrying hooks = %d, want 0", len(hooks.retrying))
	}
}

func TestSweeperStartStop(t *testing.T) {
	t.Parallel()

	s := memory.New()
	sweeper := NewSweeper(s, 5*time.Millisecond)

	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Idempotent start.
	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	// Idempotent stop.
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestSweeperZeroIntervalDisabled(t *testing.T) {
	t.Parallel()

	sweeper := NewSweeper(memory.New(), 0)
	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sweeper.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

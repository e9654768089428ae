package task_test

import (
	"testing"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

func TestFailureOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		attempts, maxAtts int
		want              task.Status
	}{
		{"first failure of three", 1, 3, task.StatusPending},
		{"second failure of three", 2, 3, task.StatusPending},
		{"budget spent exactly", 3, 3, task.StatusDeadLetter},
		{"single attempt budget", 1, 1, task.StatusDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := task.FailureOutcome(tt.attempts, tt.maxAtts); got != tt.want {
				t.Errorf("FailureOutcome(%d, %d) = %s, want %s", tt.attempts, tt.maxAtts, got, tt.want)
			}
		})
	}
}

func TestApplyClaimThenFailureSharesOnePath(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tk := &task.Task{
		Entity:      taskgrid.NewEntity(),
		ID:          id.NewTaskID(),
		TypeName:    "Demo.Echo",
		Status:      task.StatusPending,
		MaxAttempts: 2,
	}

	task.ApplyClaim(tk, "worker-1", time.Minute, now)
	if tk.Status != task.StatusClaimed || tk.ClaimedBy != "worker-1" {
		t.Fatalf("claim not applied: %+v", tk)
	}
	if tk.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", tk.Attempts)
	}
	if tk.LeaseExpiresAt == nil || !tk.LeaseExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("lease not granted: %v", tk.LeaseExpiresAt)
	}

	// First failure: retry.
	task.ApplyFailure(tk, "boom", now)
	if tk.Status != task.StatusPending {
		t.Fatalf("status = %s, want pending", tk.Status)
	}
	if tk.ClaimedBy != "" || tk.LeaseExpiresAt != nil {
		t.Error("claim fields should be cleared on retry")
	}
	if tk.Attempts != 1 {
		t.Errorf("attempts should survive retry, got %d", tk.Attempts)
	}

	// Second claim and failure: dead letter.
	task.ApplyClaim(tk, "worker-2", time.Minute, now)
	task.ApplyFailure(tk, "boom again", now)
	if tk.Status != task.StatusDeadLetter {
		t.Fatalf("status = %s, want dead_letter", tk.Status)
	}
	if tk.ErrorMessage != "boom again" {
		t.Errorf("error message %q", tk.ErrorMessage)
	}
	if tk.CompletedAt == nil {
		t.Error("dead-lettered task should carry a completion timestamp")
	}
}

func TestApplySuccess(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tk := &task.Task{
		Entity:      taskgrid.NewEntity(),
		ID:          id.NewTaskID(),
		Status:      task.StatusPending,
		MaxAttempts: 3,
	}
	task.ApplyClaim(tk, "worker-1", time.Minute, now)
	task.ApplySuccess(tk, []byte(`{"echo":"hi"}`), now)

	if tk.Status != task.StatusCompleted {
		t.Fatalf("status = %s, want completed", tk.Status)
	}
	if tk.Progress != 100 {
		t.Errorf("progress = %d, want 100", tk.Progress)
	}
	if tk.ClaimedBy != "worker-1" {
		t.Error("completed task should record which worker finished it")
	}
	if tk.LeaseExpiresAt != nil {
		t.Error("lease should be released on completion")
	}
}

func TestApplyRequeue(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tk := &task.Task{
		Entity:       taskgrid.NewEntity(),
		ID:           id.NewTaskID(),
		Status:       task.StatusDeadLetter,
		Attempts:     3,
		MaxAttempts:  3,
		ErrorMessage: "boom",
		CompletedAt:  &now,
	}
	task.ApplyRequeue(tk, now)

	if tk.Status != task.StatusPending {
		t.Fatalf("status = %s, want pending", tk.Status)
	}
	if tk.Attempts != 0 || tk.ErrorMessage != "" || tk.CompletedAt != nil {
		t.Errorf("requeue should reset attempt state: %+v", tk)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[task.Status]bool{
		task.StatusPending:    false,
		task.StatusClaimed:    false,
		task.StatusCompleted:  true,
		task.StatusFailed:     false,
		task.StatusDeadLetter: true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestLeaseExpired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	tests := []struct {
		name   string
		status task.Status
		lease  *time.Time
		want   bool
	}{
		{"claimed expired", task.StatusClaimed, &past, true},
		{"claimed live", task.StatusClaimed, &future, false},
		{"pending with stale field", task.StatusPending, &past, false},
		{"claimed without lease", task.StatusClaimed, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &task.Task{Status: tt.status, LeaseExpiresAt: tt.lease}
			if got := tk.LeaseExpired(now); got != tt.want {
				t.Errorf("LeaseExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

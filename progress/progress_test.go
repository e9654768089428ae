package progress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/store/memory"
	"github.com/taskgrid/taskgrid/task"
)

type captureHooks struct {
	updates []int
}

func (h *captureHooks) EmitProgressUpdated(_ context.Context, t *task.Task) {
	h.updates = append(h.updates, t.Progress)
}

func claimedTask(t *testing.T, s *memory.Store, workerID string) *task.Task {
	t.Helper()
	ctx := context.Background()

	tk := &task.Task{
		Entity:      taskgrid.NewEntity(),
		ID:          id.NewTaskID(),
		TypeName:    "media.transcode",
		Params:      json.RawMessage(`{}`),
		Status:      task.StatusPending,
		MaxAttempts: 3,
	}
	if _, _, err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	claimed, err := s.ClaimTask(ctx, "media.transcode", workerID, time.Minute)
	if err != nil {
		t.Fatalf("ClaimTask() error = %v", err)
	}
	return claimed
}

func TestUpdateMonotonic(t *testing.T) {
	t.Parallel()

	s := memory.New()
	claimed := claimedTask(t, s, "wkr-a")

	hooks := &captureHooks{}
	tr := NewTracker(s, WithHooks(hooks))
	ctx := context.Background()

	for _, p := range []int{0, 25, 25, 90, 100} {
		got, err := tr.Update(ctx, claimed.ID, "wkr-a", p)
		if err != nil {
			t.Fatalf("Update(%d) error = %v", p, err)
		}
		if got.Progress != p {
			t.Errorf("Progress = %d, want %d", got.Progress, p)
		}
	}

	if _, err := tr.Update(ctx, claimed.ID, "wkr-a", 50); !errors.Is(err, taskgrid.ErrInvalidProgress) {
		t.Errorf("Update(regression) error = %v, want ErrInvalidProgress", err)
	}
	if len(hooks.updates) != 5 {
		t.Errorf("hook fired %d times, want 5", len(hooks.updates))
	}
}

func TestUpdateRange(t *testing.T) {
	t.Parallel()

	s := memory.New()
	claimed := claimedTask(t, s, "wkr-a")
	tr := NewTracker(s)

	tests := []struct {
		name     string
		progress int
	}{
		{"negative", -1},
		{"over hundred", 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := tr.Update(context.Background(), claimed.ID, "wkr-a", tt.progress); !errors.Is(err, taskgrid.ErrInvalidProgress) {
				t.Errorf("Update(%d) error = %v, want ErrInvalidProgress", tt.progress, err)
			}
		})
	}
}

func TestUpdateOwnership(t *testing.T) {
	t.Parallel()

	s := memory.New()
	claimed := claimedTask(t, s, "wkr-a")
	tr := NewTracker(s)
	ctx := context.Background()

	if _, err := tr.Update(ctx, claimed.ID, "wkr-b", 10); !errors.Is(err, taskgrid.ErrNotClaimedByCaller) {
		t.Errorf("Update(other worker) error = %v, want ErrNotClaimedByCaller", err)
	}
	if _, err := tr.Update(ctx, id.NewTaskID(), "wkr-a", 10); !errors.Is(err, taskgrid.ErrTaskNotFound) {
		t.Errorf("Update(unknown task) error = %v, want ErrTaskNotFound", err)
	}
}

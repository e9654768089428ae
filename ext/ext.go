// Package ext defines the extension system for TaskGrid.
// Extensions are notified of lifecycle events (task created, claimed,
// completed, dead-lettered, etc.) and can react to them — logging,
// metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Registration hooks
// ──────────────────────────────────────────────────

// TypeRegistered is called after a task type is registered or
// re-registered.
type TypeRegistered interface {
	OnTypeRegistered(ctx context.Context, tt *tasktype.TaskType) error
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskCreated is called after a create request is accepted.
// deduplicated is true when an existing task was returned instead of
// inserting a new one.
type TaskCreated interface {
	OnTaskCreated(ctx context.Context, t *task.Task, deduplicated bool) error
}

// TaskClaimed is called when a worker claims a task.
type TaskClaimed interface {
	OnTaskClaimed(ctx context.Context, t *task.Task) error
}

// ProgressUpdated is called after a worker reports progress.
type ProgressUpdated interface {
	OnProgressUpdated(ctx context.Context, t *task.Task) error
}

// TaskCompleted is called after a task finishes successfully.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error
}

// TaskRetrying is called when a failed or reclaimed task returns to
// pending with attempts remaining. The consumed attempt count is in
// t.Attempts.
type TaskRetrying interface {
	OnTaskRetrying(ctx context.Context, t *task.Task) error
}

// TaskDeadLettered is called when a task exhausts its attempt budget.
type TaskDeadLettered interface {
	OnTaskDeadLettered(ctx context.Context, t *task.Task) error
}

// ──────────────────────────────────────────────────
// Lease and replay hooks
// ──────────────────────────────────────────────────

// LeaseReclaimed is called when the sweeper reclaims an expired claim
// lease. Fires before the follow-up TaskRetrying or TaskDeadLettered
// event for the same task.
type LeaseReclaimed interface {
	OnLeaseReclaimed(ctx context.Context, t *task.Task) error
}

// TaskRequeued is called when an operator replays a dead-lettered task.
type TaskRequeued interface {
	OnTaskRequeued(ctx context.Context, t *task.Task) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskgrid/taskgrid/id"
)

// ListOpts controls pagination and filtering for task list queries.
type ListOpts struct {
	// Status filters by task status. Empty means all statuses.
	Status Status
	// TypeName filters by task type name. Empty means all types.
	TypeName string
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
	// Offset is the number of tasks to skip.
	Offset int
}

// CountOpts controls filtering for task count queries.
type CountOpts struct {
	// Status filters by task status. Empty means all statuses.
	Status Status
	// TypeName filters by task type name. Empty means all types.
	TypeName string
}

// Store defines the persistence contract for tasks. Every operation
// that mutates a task is atomic and ownership-checked inside the store;
// callers never get raw read-then-write access.
type Store interface {
	// CreateTask inserts a task unless a non-terminal task with the same
	// fingerprint already exists, in which case the existing task is
	// returned with deduplicated=true. The lookup and insert are a
	// single atomic step, so two concurrent creates with the same
	// fingerprint can never both insert.
	CreateTask(ctx context.Context, t *Task) (created *Task, deduplicated bool, err error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// ListTasks returns tasks matching the given options, ordered by
	// creation time.
	ListTasks(ctx context.Context, opts ListOpts) ([]*Task, error)

	// CountTasks returns the number of tasks matching the given options.
	CountTasks(ctx context.Context, opts CountOpts) (int64, error)

	// ClaimTask atomically selects one pending task of the given type —
	// highest priority first, oldest first within a priority band —
	// transitions it to claimed for workerID with the given lease, and
	// increments its attempt count. Returns taskgrid.ErrNoneAvailable
	// when no eligible task exists. Two concurrent claims never receive
	// the same task.
	ClaimTask(ctx context.Context, typeName, workerID string, lease time.Duration) (*Task, error)

	// SweepExpired reclaims every claimed task whose lease has passed,
	// applying the shared failure transition (back to pending, or
	// dead_letter when the attempt budget is spent). Returns the
	// transitioned tasks.
	SweepExpired(ctx context.Context, now time.Time) ([]*Task, error)

	// CompleteTask finishes a claimed task on behalf of workerID.
	// Fails with taskgrid.ErrStaleClaim unless the task is currently
	// claimed by workerID: a lost lease, a finished task, and a task
	// re-claimed by another worker are all stale from the reporter's
	// point of view. On success=false the shared failure transition
	// applies.
	CompleteTask(ctx context.Context, taskID id.TaskID, workerID string, success bool, result json.RawMessage, errorMessage string) (*Task, error)

	// UpdateTaskProgress records a progress value for a claimed task.
	// Fails with taskgrid.ErrStaleClaim if the task is no longer
	// claimed, or taskgrid.ErrNotClaimedByCaller if it is claimed by a
	// different worker. Progress must not regress while held by the
	// same claimant.
	UpdateTaskProgress(ctx context.Context, taskID id.TaskID, workerID string, progress int) (*Task, error)

	// RequeueTask resets a dead-lettered task to pending with a fresh
	// attempt budget. Fails with taskgrid.ErrNotDeadLettered for tasks
	// in any other state.
	RequeueTask(ctx context.Context, taskID id.TaskID) (*Task, error)
}

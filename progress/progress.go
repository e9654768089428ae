// Package progress reports worker-side completion percentages for
// claimed tasks.
package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

// Hooks receives progress events. Implemented by ext.Registry.
type Hooks interface {
	EmitProgressUpdated(ctx context.Context, t *task.Task)
}

// Tracker validates and persists progress updates. Only the worker
// currently holding a task's claim may report progress on it.
type Tracker struct {
	store  task.Store
	logger *slog.Logger
	hooks  Hooks
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithHooks sets the progress event sink.
func WithHooks(h Hooks) Option {
	return func(t *Tracker) { t.hooks = h }
}

// NewTracker creates a progress tracker over the given store.
func NewTracker(store task.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update records a progress percentage for a claimed task. The value
// must be within [0, 100] and must not regress below the task's
// current progress under the same claim.
func (tr *Tracker) Update(ctx context.Context, taskID id.TaskID, workerID string, progress int) (*task.Task, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: %d is outside [0, 100]", taskgrid.ErrInvalidProgress, progress)
	}

	t, err := tr.store.UpdateTaskProgress(ctx, taskID, workerID, progress)
	if err != nil {
		return nil, err
	}

	tr.logger.Debug("progress updated",
		slog.String("task_id", t.ID.String()),
		slog.String("worker_id", workerID),
		slog.Int("progress", t.Progress),
	)
	if tr.hooks != nil {
		tr.hooks.EmitProgressUpdated(ctx, t)
	}
	return t, nil
}

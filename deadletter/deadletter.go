// Package deadletter provides inspection and replay of tasks that
// exhausted their attempt budget.
package deadletter

import (
	"context"
	"log/slog"

	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

// Hooks receives replay events. Implemented by ext.Registry.
type Hooks interface {
	EmitTaskRequeued(ctx context.Context, t *task.Task)
}

// Manager provides operator-facing access to the dead-letter set.
// Dead-lettered tasks stay in the task store under the dead_letter
// status rather than moving to a separate table, so the manager is a
// filtered view plus the requeue transition.
type Manager struct {
	store  task.Store
	logger *slog.Logger
	hooks  Hooks
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHooks sets the replay event sink.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// NewManager creates a dead-letter manager over the given store.
func NewManager(store task.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns dead-lettered tasks, oldest first, optionally filtered
// by type name.
func (m *Manager) List(ctx context.Context, typeName string, limit, offset int) ([]*task.Task, error) {
	return m.store.ListTasks(ctx, task.ListOpts{
		Status:   task.StatusDeadLetter,
		TypeName: typeName,
		Limit:    limit,
		Offset:   offset,
	})
}

// Count returns the number of dead-lettered tasks, optionally filtered
// by type name.
func (m *Manager) Count(ctx context.Context, typeName string) (int64, error) {
	return m.store.CountTasks(ctx, task.CountOpts{
		Status:   task.StatusDeadLetter,
		TypeName: typeName,
	})
}

// Requeue resets a dead-lettered task to pending with a fresh attempt
// budget so workers can pick it up again. The task keeps its identity,
// params, and fingerprint.
//
// Returns taskgrid.ErrNotDeadLettered if the task is in any other
// state.
func (m *Manager) Requeue(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	t, err := m.store.RequeueTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("dead-lettered task requeued",
		slog.String("task_id", t.ID.String()),
		slog.String("type", t.TypeName),
	)
	if m.hooks != nil {
		m.hooks.EmitTaskRequeued(ctx, t)
	}
	return t, nil
}

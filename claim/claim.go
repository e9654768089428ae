// Package claim implements the claim protocol: exclusive task handout
// to workers under a time-bounded lease, and background reclamation of
// leases whose holders went silent.
package claim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taskgrid/taskgrid/task"
)

// Hooks receives lease-lifecycle events. Implemented by ext.Registry.
type Hooks interface {
	EmitLeaseReclaimed(ctx context.Context, t *task.Task)
	EmitTaskRetrying(ctx context.Context, t *task.Task)
	EmitTaskDeadLettered(ctx context.Context, t *task.Task)
}

// Coordinator hands out pending tasks to workers. Each successful
// claim grants exclusive ownership until the lease expires.
type Coordinator struct {
	store  task.Store
	lease  time.Duration
	logger *slog.Logger
	hooks  Hooks
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithHooks sets the lease-lifecycle event sink.
func WithHooks(h Hooks) CoordinatorOption {
	return func(c *Coordinator) { c.hooks = h }
}

// NewCoordinator creates a claim coordinator granting leases of the
// given duration.
func NewCoordinator(store task.Store, lease time.Duration, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:  store,
		lease:  lease,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Claim sweeps expired leases, then atomically claims the next pending
// task of the given type for workerID. The inline sweep means a task
// freed by an expired lease is claimable on the very next request,
// regardless of the background sweep interval.
//
// Returns taskgrid.ErrNoneAvailable when no pending task of the type
// exists. That is a signal, not a failure.
func (c *Coordinator) Claim(ctx context.Context, typeName, workerID string) (*task.Task, error) {
	if workerID == "" {
		return nil, errors.New("taskgrid: worker id is required")
	}

	if err := reclaim(ctx, c.store, c.logger, c.hooks); err != nil {
		// A sweep failure must not block claims; log and continue.
		c.logger.Warn("inline lease sweep failed", slog.String("error", err.Error()))
	}

	t, err := c.store.ClaimTask(ctx, typeName, workerID, c.lease)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("task claimed",
		slog.String("task_id", t.ID.String()),
		slog.String("type", t.TypeName),
		slog.String("worker_id", workerID),
		slog.Int("attempt", t.Attempts),
	)
	return t, nil
}

// LeaseDuration returns the lease granted on each claim.
func (c *Coordinator) LeaseDuration() time.Duration { return c.lease }

// reclaim moves every expired-lease task back through the shared
// failure transition and emits the corresponding events.
func reclaim(ctx context.Context, store task.Store, logger *slog.Logger, hooks Hooks) error {
	expired, err := store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, t := range expired {
		logger.Info("lease reclaimed",
			slog.String("task_id", t.ID.String()),
			slog.String("type", t.TypeName),
			slog.Int("attempts", t.Attempts),
			slog.String("status", string(t.Status)),
		)
		if hooks == nil {
			continue
		}
		hooks.EmitLeaseReclaimed(ctx, t)
		if t.Status == task.StatusDeadLetter {
			hooks.EmitTaskDeadLettered(ctx, t)
		} else {
			hooks.EmitTaskRetrying(ctx, t)
		}
	}
	return nil
}

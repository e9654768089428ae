// Package worker provides the task execution engine — an Executor that
// invokes registered handlers through middleware, and a Pool that
// manages concurrent worker goroutines claiming tasks.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/middleware"
	"github.com/taskgrid/taskgrid/task"
)

// Source is the coordination surface workers claim from and report to.
// Implemented by *engine.Engine.
type Source interface {
	// Claim hands out one pending task of the given type, or
	// taskgrid.ErrNoneAvailable.
	Claim(ctx context.Context, typeName, workerID string) (*task.Task, error)
	// Complete finishes a claimed task. On success=false the
	// coordinator decides between retry and dead-letter.
	Complete(ctx context.Context, taskID id.TaskID, workerID string, success bool, result json.RawMessage, errorMessage string) (*task.Task, error)
	// UpdateProgress records a progress percentage for a claimed task.
	UpdateProgress(ctx context.Context, taskID id.TaskID, workerID string, progress int) (*task.Task, error)
}

type reporterKey struct{}

// Report sends a progress percentage for the task currently executing
// in this context. Outside an executor-managed handler it is a no-op.
func Report(ctx context.Context, progress int) error {
	if fn, ok := ctx.Value(reporterKey{}).(func(int) error); ok {
		return fn(progress)
	}
	return nil
}

// Executor runs a single claimed task through middleware and the
// registered handler, then reports the outcome back to the Source.
type Executor struct {
	registry *Registry
	source   Source
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(registry *Registry, source Source, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	return &Executor{
		registry: registry,
		source:   source,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a claimed task through the middleware chain and handler.
// On success the result is reported via Complete(success=true); on
// failure via Complete(success=false), leaving the retry-or-dead-letter
// decision to the coordinator.
func (e *Executor) Execute(ctx context.Context, t *task.Task, workerID string) error {
	handler, ok := e.registry.Get(t.TypeName)
	if !ok {
		// Should not happen: the pool only claims registered types.
		err := fmt.Errorf("no handler registered for type %q", t.TypeName)
		if _, cErr := e.source.Complete(ctx, t.ID, workerID, false, nil, err.Error()); cErr != nil {
			e.logger.Error("failed to report missing handler",
				slog.String("task_id", t.ID.String()),
				slog.String("error", cErr.Error()),
			)
		}
		return err
	}

	// Expose a progress reporter to the handler via context.
	ctx = context.WithValue(ctx, reporterKey{}, func(progress int) error {
		_, err := e.source.UpdateProgress(ctx, t.ID, workerID, progress)
		return err
	})

	var result json.RawMessage
	terminal := func(ctx context.Context) error {
		var err error
		result, err = handler(ctx, t, t.Params)
		return err
	}

	err := e.mw(ctx, t, terminal)

	if err != nil {
		if _, cErr := e.source.Complete(ctx, t.ID, workerID, false, nil, err.Error()); cErr != nil {
			e.logger.Error("failed to report task failure",
				slog.String("task_id", t.ID.String()),
				slog.String("type", t.TypeName),
				slog.String("error", cErr.Error()),
			)
			return cErr
		}
		return err
	}

	if _, cErr := e.source.Complete(ctx, t.ID, workerID, true, result, ""); cErr != nil {
		e.logger.Error("failed to report task success",
			slog.String("task_id", t.ID.String()),
			slog.String("type", t.TypeName),
			slog.String("error", cErr.Error()),
		)
		return cErr
	}
	return nil
}

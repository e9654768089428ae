package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type typeRegisteredEntry struct {
	name string
	hook TypeRegistered
}

type taskCreatedEntry struct {
	name string
	hook TaskCreated
}

type taskClaimedEntry struct {
	name string
	hook TaskClaimed
}

type progressUpdatedEntry struct {
	name string
	hook ProgressUpdated
}

type taskCompletedEntry struct {
	name string
	hook TaskCompleted
}

type taskRetryingEntry struct {
	name string
	hook TaskRetrying
}

type taskDeadLetteredEntry struct {
	name string
	hook TaskDeadLettered
}

type leaseReclaimedEntry struct {
	name string
	hook LeaseReclaimed
}

type taskRequeuedEntry struct {
	name string
	hook TaskRequeued
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	typeRegistered   []typeRegisteredEntry
	taskCreated      []taskCreatedEntry
	taskClaimed      []taskClaimedEntry
	progressUpdated  []progressUpdatedEntry
	taskCompleted    []taskCompletedEntry
	taskRetrying     []taskRetryingEntry
	taskDeadLettered []taskDeadLetteredEntry
	leaseReclaimed   []leaseReclaimedEntry
	taskRequeued     []taskRequeuedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TypeRegistered); ok {
		r.typeRegistered = append(r.typeRegistered, typeRegisteredEntry{name, h})
	}
	if h, ok := e.(TaskCreated); ok {
		r.taskCreated = append(r.taskCreated, taskCreatedEntry{name, h})
	}
	if h, ok := e.(TaskClaimed); ok {
		r.taskClaimed = append(r.taskClaimed, taskClaimedEntry{name, h})
	}
	if h, ok := e.(ProgressUpdated); ok {
		r.progressUpdated = append(r.progressUpdated, progressUpdatedEntry{name, h})
	}
	if h, ok := e.(TaskCompleted); ok {
		r.taskCompleted = append(r.taskCompleted, taskCompletedEntry{name, h})
	}
	if h, ok := e.(TaskRetrying); ok {
		r.taskRetrying = append(r.taskRetrying, taskRetryingEntry{name, h})
	}
	if h, ok := e.(TaskDeadLettered); ok {
		r.taskDeadLettered = append(r.taskDeadLettered, taskDeadLetteredEntry{name, h})
	}
	if h, ok := e.(LeaseReclaimed); ok {
		r.leaseReclaimed = append(r.leaseReclaimed, leaseReclaimedEntry{name, h})
	}
	if h, ok := e.(TaskRequeued); ok {
		r.taskRequeued = append(r.taskRequeued, taskRequeuedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitTypeRegistered notifies all extensions that implement TypeRegistered.
func (r *Registry) EmitTypeRegistered(ctx context.Context, tt *tasktype.TaskType) {
	for _, e := range r.typeRegistered {
		if err := e.hook.OnTypeRegistered(ctx, tt); err != nil {
			r.logHookError("OnTypeRegistered", e.name, err)
		}
	}
}

// EmitTaskCreated notifies all extensions that implement TaskCreated.
func (r *Registry) EmitTaskCreated(ctx context.Context, t *task.Task, deduplicated bool) {
	for _, e := range r.taskCreated {
		if err := e.hook.OnTaskCreated(ctx, t, deduplicated); err != nil {
			r.logHookError("OnTaskCreated", e.name, err)
		}
	}
}

// EmitTaskClaimed notifies all extensions that implement TaskClaimed.
func (r *Registry) EmitTaskClaimed(ctx context.Context, t *task.Task) {
	for _, e := range r.taskClaimed {
		if err := e.hook.OnTaskClaimed(ctx, t); err != nil {
			r.logHookError("OnTaskClaimed", e.name, err)
		}
	}
}

// EmitProgressUpdated notifies all extensions that implement ProgressUpdated.
func (r *Registry) EmitProgressUpdated(ctx context.Context, t *task.Task) {
	for _, e := range r.progressUpdated {
		if err := e.hook.OnProgressUpdated(ctx, t); err != nil {
			r.logHookError("OnProgressUpdated", e.name, err)
		}
	}
}

// EmitTaskCompleted notifies all extensions that implement TaskCompleted.
func (r *Registry) EmitTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) {
	for _, e := range r.taskCompleted {
		if err := e.hook.OnTaskCompleted(ctx, t, elapsed); err != nil {
			r.logHookError("OnTaskCompleted", e.name, err)
		}
	}
}

// EmitTaskRetrying notifies all extensions that implement TaskRetrying.
func (r *Registry) EmitTaskRetrying(ctx context.Context, t *task.Task) {
	for _, e := range r.taskRetrying {
		if err := e.hook.OnTaskRetrying(ctx, t); err != nil {
			r.logHookError("OnTaskRetrying", e.name, err)
		}
	}
}

// EmitTaskDeadLettered notifies all extensions that implement TaskDeadLettered.
func (r *Registry) EmitTaskDeadLettered(ctx context.Context, t *task.Task) {
	for _, e := range r.taskDeadLettered {
		if err := e.hook.OnTaskDeadLettered(ctx, t); err != nil {
			r.logHookError("OnTaskDeadLettered", e.name, err)
		}
	}
}

// EmitLeaseReclaimed notifies all extensions that implement LeaseReclaimed.
func (r *Registry) EmitLeaseReclaimed(ctx context.Context, t *task.Task) {
	for _, e := range r.leaseReclaimed {
		if err := e.hook.OnLeaseReclaimed(ctx, t); err != nil {
			r.logHookError("OnLeaseReclaimed", e.name, err)
		}
	}
}

// EmitTaskRequeued notifies all extensions that implement TaskRequeued.
func (r *Registry) EmitTaskRequeued(ctx context.Context, t *task.Task) {
	for _, e := range r.taskRequeued {
		if err := e.hook.OnTaskRequeued(ctx, t); err != nil {
			r.logHookError("OnTaskRequeued", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

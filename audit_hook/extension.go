package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskgrid/taskgrid/ext"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.TypeRegistered   = (*Extension)(nil)
	_ ext.TaskCreated      = (*Extension)(nil)
	_ ext.TaskClaimed      = (*Extension)(nil)
	_ ext.ProgressUpdated  = (*Extension)(nil)
	_ ext.TaskCompleted    = (*Extension)(nil)
	_ ext.TaskRetrying     = (*Extension)(nil)
	_ ext.TaskDeadLettered = (*Extension)(nil)
	_ ext.LeaseReclaimed   = (*Extension)(nil)
	_ ext.TaskRequeued     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not import
// any particular audit system — callers inject the concrete backend at
// wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event. Callers
// provide a RecorderFunc adapter that bridges to their audit backend.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges TaskGrid lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Registration hooks ──────────────────────────────

// OnTypeRegistered implements ext.TypeRegistered.
func (e *Extension) OnTypeRegistered(ctx context.Context, tt *tasktype.TaskType) error {
	return e.record(ctx, ActionTypeRegistered, SeverityInfo, OutcomeSuccess,
		ResourceType, tt.ID.String(), CategoryType, nil,
		"type_name", tt.Name,
		"version", tt.Version,
	)
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCreated implements ext.TaskCreated.
func (e *Extension) OnTaskCreated(ctx context.Context, t *task.Task, deduplicated bool) error {
	return e.record(ctx, ActionTaskCreated, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
		"priority", t.Priority,
		"deduplicated", deduplicated,
	)
}

// OnTaskClaimed implements ext.TaskClaimed.
func (e *Extension) OnTaskClaimed(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskClaimed, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
		"worker_id", t.ClaimedBy,
		"attempt", t.Attempts,
	)
}

// OnProgressUpdated implements ext.ProgressUpdated.
func (e *Extension) OnProgressUpdated(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionProgressUpdated, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
		"worker_id", t.ClaimedBy,
		"progress", t.Progress,
	)
}

// OnTaskCompleted implements ext.TaskCompleted.
func (e *Extension) OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error {
	return e.record(ctx, ActionTaskCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
		"worker_id", t.ClaimedBy,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnTaskRetrying implements ext.TaskRetrying.
func (e *Extension) OnTaskRetrying(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskRetrying, SeverityWarning, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
		"attempt", t.Attempts,
		"max_attempts", t.MaxAttempts,
		"last_error", t.ErrorMessage,
	)
}

// OnTaskDeadLettered implements ext.TaskDeadLettered.
func (e *Extension) OnTaskDeadLettered(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
		"attempts", t.Attempts,
		"last_error", t.ErrorMessage,
	)
}

// ── Lease and replay hooks ──────────────────────────

// OnLeaseReclaimed implements ext.LeaseReclaimed.
func (e *Extension) OnLeaseReclaimed(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionLeaseReclaimed, SeverityWarning, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
		"attempt", t.Attempts,
	)
}

// OnTaskRequeued implements ext.TaskRequeued.
func (e *Extension) OnTaskRequeued(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskRequeued, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_type", t.TypeName,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

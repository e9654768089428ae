package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ah "github.com/taskgrid/taskgrid/audit_hook"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestTask() *task.Task {
	return &task.Task{
		ID:           id.NewTaskID(),
		TypeName:     "email.send",
		Status:       task.StatusClaimed,
		ClaimedBy:    "wkr-1",
		Attempts:     1,
		MaxAttempts:  3,
		Progress:     40,
		ErrorMessage: "smtp timeout",
	}
}

func newTestType() *tasktype.TaskType {
	return &tasktype.TaskType{
		ID:      id.NewTaskTypeID(),
		Name:    "email.send",
		Version: "1.0.0",
		Active:  true,
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

func TestOnTypeRegistered(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	tt := newTestType()

	if err := e.OnTypeRegistered(context.Background(), tt); err != nil {
		t.Fatalf("OnTypeRegistered() error = %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionTypeRegistered {
		t.Errorf("Action = %q", evt.Action)
	}
	if evt.Resource != ah.ResourceType || evt.ResourceID != tt.ID.String() {
		t.Errorf("Resource = %q/%q", evt.Resource, evt.ResourceID)
	}
	if evt.Metadata["type_name"] != "email.send" || evt.Metadata["version"] != "1.0.0" {
		t.Errorf("Metadata = %v", evt.Metadata)
	}
}

func TestTaskLifecycleEvents(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	tk := newTestTask()
	ctx := context.Background()

	if err := e.OnTaskCreated(ctx, tk, true); err != nil {
		t.Fatalf("OnTaskCreated() error = %v", err)
	}
	if err := e.OnTaskClaimed(ctx, tk); err != nil {
		t.Fatalf("OnTaskClaimed() error = %v", err)
	}
	if err := e.OnProgressUpdated(ctx, tk); err != nil {
		t.Fatalf("OnProgressUpdated() error = %v", err)
	}
	if err := e.OnTaskCompleted(ctx, tk, 1500*time.Millisecond); err != nil {
		t.Fatalf("OnTaskCompleted() error = %v", err)
	}
	if err := e.OnTaskRetrying(ctx, tk); err != nil {
		t.Fatalf("OnTaskRetrying() error = %v", err)
	}
	if err := e.OnTaskDeadLettered(ctx, tk); err != nil {
		t.Fatalf("OnTaskDeadLettered() error = %v", err)
	}
	if err := e.OnLeaseReclaimed(ctx, tk); err != nil {
		t.Fatalf("OnLeaseReclaimed() error = %v", err)
	}
	if err := e.OnTaskRequeued(ctx, tk); err != nil {
		t.Fatalf("OnTaskRequeued() error = %v", err)
	}

	if rec.count() != 8 {
		t.Fatalf("recorded %d events, want 8", rec.count())
	}

	created := rec.findByAction(ah.ActionTaskCreated)
	if created == nil || created.Metadata["deduplicated"] != true {
		t.Errorf("created event = %+v", created)
	}

	completed := rec.findByAction(ah.ActionTaskCompleted)
	if completed == nil || completed.Metadata["elapsed_ms"] != int64(1500) {
		t.Errorf("completed event = %+v", completed)
	}

	dead := rec.findByAction(ah.ActionTaskDeadLettered)
	if dead == nil {
		t.Fatal("no dead-letter event")
	}
	if dead.Severity != ah.SeverityCritical || dead.Outcome != ah.OutcomeFailure {
		t.Errorf("dead-letter severity/outcome = %q/%q", dead.Severity, dead.Outcome)
	}
	if dead.Metadata["last_error"] != "smtp timeout" {
		t.Errorf("dead-letter metadata = %v", dead.Metadata)
	}

	retrying := rec.findByAction(ah.ActionTaskRetrying)
	if retrying == nil || retrying.Severity != ah.SeverityWarning {
		t.Errorf("retrying event = %+v", retrying)
	}
}

func TestWithActionsFiltering(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionTaskDeadLettered))
	tk := newTestTask()
	ctx := context.Background()

	if err := e.OnTaskCreated(ctx, tk, false); err != nil {
		t.Fatalf("OnTaskCreated() error = %v", err)
	}
	if err := e.OnTaskClaimed(ctx, tk); err != nil {
		t.Fatalf("OnTaskClaimed() error = %v", err)
	}
	if err := e.OnTaskDeadLettered(ctx, tk); err != nil {
		t.Fatalf("OnTaskDeadLettered() error = %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("recorded %d events, want 1", rec.count())
	}
	if rec.last().Action != ah.ActionTaskDeadLettered {
		t.Errorf("Action = %q", rec.last().Action)
	}
}

func TestRecorderErrorDoesNotPropagate(t *testing.T) {
	failing := ah.RecorderFunc(func(context.Context, *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})
	e := ah.New(failing)

	if err := e.OnTaskClaimed(context.Background(), newTestTask()); err != nil {
		t.Errorf("OnTaskClaimed() error = %v, want nil", err)
	}
}

func TestAllActionsCoversEveryHook(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.AllActions()...))
	tk := newTestTask()
	ctx := context.Background()

	if err := e.OnTypeRegistered(ctx, newTestType()); err != nil {
		t.Fatalf("OnTypeRegistered() error = %v", err)
	}
	if err := e.OnTaskCreated(ctx, tk, false); err != nil {
		t.Fatalf("OnTaskCreated() error = %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("recorded %d events, want 2", rec.count())
	}
}

package ext

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// fullExtension implements every hook and records call counts.
type fullExtension struct {
	name string

	typeRegistered   int
	taskCreated      int
	dedupSeen        bool
	taskClaimed      int
	progressUpdated  int
	taskCompleted    int
	elapsed          time.Duration
	taskRetrying     int
	taskDeadLettered int
	leaseReclaimed   int
	taskRequeued     int
	shutdown         int
}

func (f *fullExtension) Name() string { return f.name }

func (f *fullExtension) OnTypeRegistered(_ context.Context, _ *tasktype.TaskType) error {
	f.typeRegistered++
	return nil
}

func (f *fullExtension) OnTaskCreated(_ context.Context, _ *task.Task, deduplicated bool) error {
	f.taskCreated++
	f.dedupSeen = f.dedupSeen || deduplicated
	return nil
}

func (f *fullExtension) OnTaskClaimed(_ context.Context, _ *task.Task) error {
	f.taskClaimed++
	return nil
}

func (f *fullExtension) OnProgressUpdated(_ context.Context, _ *task.Task) error {
	f.progressUpdated++
	return nil
}

func (f *fullExtension) OnTaskCompleted(_ context.Context, _ *task.Task, elapsed time.Duration) error {
	f.taskCompleted++
	f.elapsed = elapsed
	return nil
}

func (f *fullExtension) OnTaskRetrying(_ context.Context, _ *task.Task) error {
	f.taskRetrying++
	return nil
}

func (f *fullExtension) OnTaskDeadLettered(_ context.Context, _ *task.Task) error {
	f.taskDeadLettered++
	return nil
}

func (f *fullExtension) OnLeaseReclaimed(_ context.Context, _ *task.Task) error {
	f.leaseReclaimed++
	return nil
}

func (f *fullExtension) OnTaskRequeued(_ context.Context, _ *task.Task) error {
	f.taskRequeued++
	return nil
}

func (f *fullExtension) OnShutdown(_ context.Context) error {
	f.shutdown++
	return nil
}

// claimOnlyExtension implements a single hook.
type claimOnlyExtension struct {
	claims int
}

func (c *claimOnlyExtension) Name() string { return "claim-only" }

func (c *claimOnlyExtension) OnTaskClaimed(_ context.Context, _ *task.Task) error {
	c.claims++
	return nil
}

// failingExtension always errors from its hook.
type failingExtension struct{}

func (failingExtension) Name() string { return "failing" }

func (failingExtension) OnTaskCreated(_ context.Context, _ *task.Task, _ bool) error {
	return errors.New("hook exploded")
}

func sampleTask() *task.Task {
	return &task.Task{
		Entity:   taskgrid.NewEntity(),
		ID:       id.NewTaskID(),
		TypeName: "email.send",
		Status:   task.StatusPending,
	}
}

func TestRegistryDispatchesAllEvents(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	f := &fullExtension{name: "full"}
	r.Register(f)

	ctx := context.Background()
	tk := sampleTask()

	r.EmitTypeRegistered(ctx, &tasktype.TaskType{Name: "email.send"})
	r.EmitTaskCreated(ctx, tk, false)
	r.EmitTaskCreated(ctx, tk, true)
	r.EmitTaskClaimed(ctx, tk)
	r.EmitProgressUpdated(ctx, tk)
	r.EmitTaskCompleted(ctx, tk, 3*time.Second)
	r.EmitTaskRetrying(ctx, tk)
	r.EmitTaskDeadLettered(ctx, tk)
	r.EmitLeaseReclaimed(ctx, tk)
	r.EmitTaskRequeued(ctx, tk)
	r.EmitShutdown(ctx)

	if f.typeRegistered != 1 {
		t.Errorf("typeRegistered = %d, want 1", f.typeRegistered)
	}
	if f.taskCreated != 2 || !f.dedupSeen {
		t.Errorf("taskCreated = %d (dedupSeen %v), want 2/true", f.taskCreated, f.dedupSeen)
	}
	if f.taskClaimed != 1 {
		t.Errorf("taskClaimed = %d, want 1", f.taskClaimed)
	}
	if f.progressUpdated != 1 {
		t.Errorf("progressUpdated = %d, want 1", f.progressUpdated)
	}
	if f.taskCompleted != 1 || f.elapsed != 3*time.Second {
		t.Errorf("taskCompleted = %d elapsed = %v", f.taskCompleted, f.elapsed)
	}
	if f.taskRetrying != 1 {
		t.Errorf("taskRetrying = %d, want 1", f.taskRetrying)
	}
	if f.taskDeadLettered != 1 {
		t.Errorf("taskDeadLettered = %d, want 1", f.taskDeadLettered)
	}
	if f.leaseReclaimed != 1 {
		t.Errorf("leaseReclaimed = %d, want 1", f.leaseReclaimed)
	}
	if f.taskRequeued != 1 {
		t.Errorf("taskRequeued = %d, want 1", f.taskRequeued)
	}
	if f.shutdown != 1 {
		t.Errorf("shutdown = %d, want 1", f.shutdown)
	}
}

func TestRegistryPartialImplementation(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	c := &claimOnlyExtension{}
	r.Register(c)

	ctx := context.Background()
	tk := sampleTask()

	// Events the extension doesn't implement must be no-ops.
	r.EmitTaskCreated(ctx, tk, false)
	r.EmitTaskCompleted(ctx, tk, time.Second)
	r.EmitShutdown(ctx)

	r.EmitTaskClaimed(ctx, tk)
	r.EmitTaskClaimed(ctx, tk)

	if c.claims != 2 {
		t.Errorf("claims = %d, want 2", c.claims)
	}
}

func TestRegistryHookErrorDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	r.Register(failingExtension{})
	f := &fullExtension{name: "after-failing"}
	r.Register(f)

	r.EmitTaskCreated(context.Background(), sampleTask(), false)

	if f.taskCreated != 1 {
		t.Errorf("extension after failing hook got %d calls, want 1", f.taskCreated)
	}
}

func TestExtensionsOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	a := &fullExtension{name: "a"}
	b := &fullExtension{name: "b"}
	r.Register(a)
	r.Register(b)

	exts := r.Extensions()
	if len(exts) != 2 || exts[0].Name() != "a" || exts[1].Name() != "b" {
		t.Errorf("Extensions() order = %v", []string{exts[0].Name(), exts[1].Name()})
	}
}

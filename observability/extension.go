package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskgrid/taskgrid/ext"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/taskgrid/taskgrid/observability"

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.TypeRegistered   = (*MetricsExtension)(nil)
	_ ext.TaskCreated      = (*MetricsExtension)(nil)
	_ ext.TaskClaimed      = (*MetricsExtension)(nil)
	_ ext.TaskCompleted    = (*MetricsExtension)(nil)
	_ ext.TaskRetrying     = (*MetricsExtension)(nil)
	_ ext.TaskDeadLettered = (*MetricsExtension)(nil)
	_ ext.LeaseReclaimed   = (*MetricsExtension)(nil)
	_ ext.TaskRequeued     = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via the OTel
// metric API. Register it as a TaskGrid extension to automatically
// track creation rates, dedup hits, claim counts, completion counts,
// retry counts, dead-letter entries, lease reclamations, and replays.
//
// If no MeterProvider is configured globally, the counters are noops.
type MetricsExtension struct {
	typesRegistered metric.Int64Counter
	tasksCreated    metric.Int64Counter
	tasksClaimed    metric.Int64Counter
	tasksCompleted  metric.Int64Counter
	tasksRetried    metric.Int64Counter
	tasksDead       metric.Int64Counter
	leasesReclaimed metric.Int64Counter
	tasksRequeued   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// On error the OTel API contract guarantees noop instruments.
	m.typesRegistered, _ = meter.Int64Counter("taskgrid.type.registered",
		metric.WithDescription("Total task type registrations"))
	m.tasksCreated, _ = meter.Int64Counter("taskgrid.task.created",
		metric.WithDescription("Total task create requests accepted"))
	m.tasksClaimed, _ = meter.Int64Counter("taskgrid.task.claimed",
		metric.WithDescription("Total successful claims"))
	m.tasksCompleted, _ = meter.Int64Counter("taskgrid.task.completed",
		metric.WithDescription("Total successful completions"))
	m.tasksRetried, _ = meter.Int64Counter("taskgrid.task.retried",
		metric.WithDescription("Total failures returned to pending"))
	m.tasksDead, _ = meter.Int64Counter("taskgrid.task.dead_lettered",
		metric.WithDescription("Total tasks that exhausted their attempt budget"))
	m.leasesReclaimed, _ = meter.Int64Counter("taskgrid.lease.reclaimed",
		metric.WithDescription("Total expired claim leases reclaimed"))
	m.tasksRequeued, _ = meter.Int64Counter("taskgrid.task.requeued",
		metric.WithDescription("Total dead-lettered tasks replayed"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(typeName string) metric.AddOption {
	return metric.WithAttributes(attribute.String("type", typeName))
}

// OnTypeRegistered implements ext.TypeRegistered.
func (m *MetricsExtension) OnTypeRegistered(ctx context.Context, tt *tasktype.TaskType) error {
	m.typesRegistered.Add(ctx, 1, typeAttr(tt.Name))
	return nil
}

// OnTaskCreated implements ext.TaskCreated.
func (m *MetricsExtension) OnTaskCreated(ctx context.Context, t *task.Task, deduplicated bool) error {
	m.tasksCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", t.TypeName),
		attribute.Bool("deduplicated", deduplicated),
	))
	return nil
}

// OnTaskClaimed implements ext.TaskClaimed.
func (m *MetricsExtension) OnTaskClaimed(ctx context.Context, t *task.Task) error {
	m.tasksClaimed.Add(ctx, 1, typeAttr(t.TypeName))
	return nil
}

// OnTaskCompleted implements ext.TaskCompleted.
func (m *MetricsExtension) OnTaskCompleted(ctx context.Context, t *task.Task, _ time.Duration) error {
	m.tasksCompleted.Add(ctx, 1, typeAttr(t.TypeName))
	return nil
}

// OnTaskRetrying implements ext.TaskRetrying.
func (m *MetricsExtension) OnTaskRetrying(ctx context.Context, t *task.Task) error {
	m.tasksRetried.Add(ctx, 1, typeAttr(t.TypeName))
	return nil
}

// OnTaskDeadLettered implements ext.TaskDeadLettered.
func (m *MetricsExtension) OnTaskDeadLettered(ctx context.Context, t *task.Task) error {
	m.tasksDead.Add(ctx, 1, typeAttr(t.TypeName))
	return nil
}

// OnLeaseReclaimed implements ext.LeaseReclaimed.
func (m *MetricsExtension) OnLeaseReclaimed(ctx context.Context, t *task.Task) error {
	m.leasesReclaimed.Add(ctx, 1, typeAttr(t.TypeName))
	return nil
}

// OnTaskRequeued implements ext.TaskRequeued.
func (m *MetricsExtension) OnTaskRequeued(ctx context.Context, t *task.Task) error {
	m.tasksRequeued.Add(ctx, 1, typeAttr(t.TypeName))
	return nil
}

package observability

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not Sum[int64]", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtensionCounters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetricsExtensionWithMeter(mp.Meter("test"))

	ctx := context.Background()
	tk := &task.Task{
		Entity:   taskgrid.NewEntity(),
		ID:       id.NewTaskID(),
		TypeName: "email.send",
	}

	_ = m.OnTypeRegistered(ctx, &tasktype.TaskType{Name: "email.send"})
	_ = m.OnTaskCreated(ctx, tk, false)
	_ = m.OnTaskCreated(ctx, tk, true)
	_ = m.OnTaskClaimed(ctx, tk)
	_ = m.OnTaskCompleted(ctx, tk, time.Second)
	_ = m.OnTaskRetrying(ctx, tk)
	_ = m.OnTaskDeadLettered(ctx, tk)
	_ = m.OnLeaseReclaimed(ctx, tk)
	_ = m.OnTaskRequeued(ctx, tk)

	checks := map[string]int64{
		"taskgrid.type.registered":    1,
		"taskgrid.task.created":       2,
		"taskgrid.task.claimed":       1,
		"taskgrid.task.completed":     1,
		"taskgrid.task.retried":       1,
		"taskgrid.task.dead_lettered": 1,
		"taskgrid.lease.reclaimed":    1,
		"taskgrid.task.requeued":      1,
	}
	for name, want := range checks {
		if got := counterValue(t, reader, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestMetricsExtensionName(t *testing.T) {
	t.Parallel()

	if got := NewMetricsExtension().Name(); got != "observability-metrics" {
		t.Errorf("Name() = %q", got)
	}
}

// Package engine wires all TaskGrid subsystems together. It creates the
// extension registry, task type registry, claim coordinator, lease
// sweeper, progress tracker, dead-letter manager, and worker pool, and
// provides the RegisterType/CreateTask/Claim/Complete operations.
//
// This package exists to break the import cycle: the root taskgrid
// package defines Entity (imported by task, tasktype, etc.) and so
// cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/backoff"
	"github.com/taskgrid/taskgrid/claim"
	"github.com/taskgrid/taskgrid/cron"
	"github.com/taskgrid/taskgrid/deadletter"
	"github.com/taskgrid/taskgrid/ext"
	"github.com/taskgrid/taskgrid/fingerprint"
	"github.com/taskgrid/taskgrid/id"
	mw "github.com/taskgrid/taskgrid/middleware"
	"github.com/taskgrid/taskgrid/observability"
	"github.com/taskgrid/taskgrid/progress"
	"github.com/taskgrid/taskgrid/quota"
	"github.com/taskgrid/taskgrid/schema"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
	"github.com/taskgrid/taskgrid/worker"
)

// Engine wraps a Coordinator with typed subsystem access.
// Use Build() to create one from a Coordinator.
type Engine struct {
	c          *taskgrid.Coordinator
	extensions *ext.Registry
	types      *tasktype.Registry
	taskStore  task.Store
	typeStore  tasktype.Store
	claimer    *claim.Coordinator
	sweeper    *claim.Sweeper
	tracker    *progress.Tracker
	deadLetter *deadletter.Manager
	scheduler  *cron.Scheduler
	workers    *worker.Registry
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger

	// Worker pool configuration.
	concurrency int
	poll        backoff.Strategy

	// Quota subsystem.
	quotaConfigs []quota.Config
	quotaManager *quota.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's execution chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithWorkerConcurrency sets the number of concurrent worker
// goroutines in the engine's pool.
func WithWorkerConcurrency(n int) Option {
	return func(eng *Engine) {
		eng.concurrency = n
	}
}

// WithPollStrategy sets the idle backoff used between empty claim
// passes. If not set, backoff.DefaultPollStrategy() is used.
func WithPollStrategy(s backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.poll = s
	}
}

// WithQuotaConfig registers per-type rate limiting and concurrency
// configurations. Types not listed have no limits.
func WithQuotaConfig(configs ...quota.Config) Option {
	return func(eng *Engine) {
		eng.quotaConfigs = append(eng.quotaConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Coordinator.
// The Coordinator's store must implement task.Store and tasktype.Store.
func Build(c *taskgrid.Coordinator, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	store := c.Store()

	if store == nil {
		return nil, taskgrid.ErrNoStore
	}

	ts, ok := store.(task.Store)
	if !ok {
		return nil, fmt.Errorf("taskgrid: store does not implement task.Store")
	}
	tts, ok := store.(tasktype.Store)
	if !ok {
		return nil, fmt.Errorf("taskgrid: store does not implement tasktype.Store")
	}

	config := c.Config()
	eng := &Engine{
		c:           c,
		extensions:  ext.NewRegistry(logger),
		taskStore:   ts,
		typeStore:   tts,
		workers:     worker.NewRegistry(),
		logger:      logger,
		concurrency: 10,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.poll == nil {
		eng.poll = backoff.DefaultPollStrategy()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/taskgrid/taskgrid/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Task type registry with the configured pattern cap.
	eng.types = tasktype.NewRegistry(tts,
		tasktype.WithMaxPatternLength(config.MaxPatternLength),
		tasktype.WithRegistryLogger(logger),
	)

	// Claim protocol: coordinator plus background lease sweeper.
	eng.claimer = claim.NewCoordinator(ts, config.LeaseDuration,
		claim.WithLogger(logger),
		claim.WithHooks(eng.extensions),
	)
	eng.sweeper = claim.NewSweeper(ts, config.SweepInterval,
		claim.WithSweeperLogger(logger),
		claim.WithSweeperHooks(eng.extensions),
	)

	eng.tracker = progress.NewTracker(ts,
		progress.WithLogger(logger),
		progress.WithHooks(eng.extensions),
	)
	eng.deadLetter = deadletter.NewManager(ts,
		deadletter.WithLogger(logger),
		deadletter.WithHooks(eng.extensions),
	)

	eng.scheduler = cron.NewScheduler(eng.CreateTask,
		cron.WithLogger(logger),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/taskgrid/taskgrid")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/taskgrid/taskgrid")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.workers, eng, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(eng.concurrency),
		worker.WithPollStrategy(eng.poll),
	}
	if len(eng.quotaConfigs) > 0 {
		eng.quotaManager = quota.NewManager(eng.quotaConfigs...)
		poolOpts = append(poolOpts, worker.WithQuotaManager(eng.quotaManager))
	}

	eng.pool = worker.NewPool(eng, executor, eng.workers, logger, poolOpts...)

	// Wire back into the Coordinator.
	c.SetSweeper(eng.sweeper)
	c.SetExtensions(eng.extensions)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Task type operations
// ──────────────────────────────────────────────────

// RegisterType validates the parameter schema and registers (or
// updates) the named task type.
func (eng *Engine) RegisterType(ctx context.Context, name, version string, paramSchema json.RawMessage) (*tasktype.TaskType, error) {
	tt, err := eng.types.Register(ctx, name, version, paramSchema)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitTypeRegistered(ctx, tt)
	return tt, nil
}

// DeactivateType removes the named type from task creation. Existing
// tasks are unaffected.
func (eng *Engine) DeactivateType(ctx context.Context, name string) error {
	return eng.types.Deactivate(ctx, name)
}

// GetType returns the task type with the given name, active or not.
func (eng *Engine) GetType(ctx context.Context, name string) (*tasktype.TaskType, error) {
	return eng.types.Get(ctx, name)
}

// GetTypeByID returns the task type with the given ID.
func (eng *Engine) GetTypeByID(ctx context.Context, typeID id.TaskTypeID) (*tasktype.TaskType, error) {
	return eng.typeStore.GetTaskType(ctx, typeID)
}

// ListTypes returns registered task types, optionally active only.
func (eng *Engine) ListTypes(ctx context.Context, activeOnly bool) ([]*tasktype.TaskType, error) {
	return eng.types.List(ctx, activeOnly)
}

// ──────────────────────────────────────────────────
// Task operations
// ──────────────────────────────────────────────────

// CreateTask validates params against the type's schema, applies
// schema defaults, fingerprints the normalized document, and inserts
// the task — unless an equivalent non-terminal task already exists, in
// which case that task is returned with deduplicated=true.
func (eng *Engine) CreateTask(ctx context.Context, typeName string, params json.RawMessage, opts ...task.Option) (*task.Task, bool, error) {
	tt, err := eng.types.Get(ctx, typeName)
	if err != nil {
		return nil, false, err
	}
	if !tt.Active {
		return nil, false, fmt.Errorf("%w: %q", taskgrid.ErrTaskTypeInactive, typeName)
	}

	sch, err := eng.types.Schema(ctx, typeName)
	if err != nil {
		return nil, false, err
	}
	normalized, result := sch.Validate(params)
	if !result.Valid {
		return nil, false, fmt.Errorf("%w: %w", taskgrid.ErrInvalidParams, &schema.ValidationError{Errors: result.Errors})
	}

	fp, err := fingerprint.Compute(typeName, normalized)
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint task for type %q: %w", typeName, err)
	}

	taskOpts := task.DefaultOptions()
	for _, opt := range opts {
		opt(&taskOpts)
	}
	maxAttempts := taskOpts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = eng.c.Config().DefaultMaxAttempts
	}

	t := &task.Task{
		Entity:      taskgrid.NewEntity(),
		ID:          id.NewTaskID(),
		TypeName:    typeName,
		Params:      normalized,
		Fingerprint: fp,
		Status:      task.StatusPending,
		Priority:    taskOpts.Priority,
		MaxAttempts: maxAttempts,
	}

	created, deduplicated, err := eng.taskStore.CreateTask(ctx, t)
	if err != nil {
		return nil, false, err
	}

	eng.extensions.EmitTaskCreated(ctx, created, deduplicated)
	return created, deduplicated, nil
}

// Create validates and creates a task with a typed parameter struct.
func Create[T any](ctx context.Context, eng *Engine, typeName string, params T, opts ...task.Option) (*task.Task, bool, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, false, fmt.Errorf("marshal params for type %q: %w", typeName, err)
	}
	return eng.CreateTask(ctx, typeName, data, opts...)
}

// GetTask retrieves a task by ID.
func (eng *Engine) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return eng.taskStore.GetTask(ctx, taskID)
}

// ListTasks returns tasks matching the given options.
func (eng *Engine) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	return eng.taskStore.ListTasks(ctx, opts)
}

// CountTasks returns the number of tasks matching the given options.
func (eng *Engine) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	return eng.taskStore.CountTasks(ctx, opts)
}

// ──────────────────────────────────────────────────
// Claim protocol operations
// ──────────────────────────────────────────────────

// Claim hands out one pending task of the given type to workerID under
// a lease. Returns taskgrid.ErrNoneAvailable when the queue is empty.
func (eng *Engine) Claim(ctx context.Context, typeName, workerID string) (*task.Task, error) {
	t, err := eng.claimer.Claim(ctx, typeName, workerID)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitTaskClaimed(ctx, t)
	return t, nil
}

// UpdateProgress records a progress percentage for a claimed task.
func (eng *Engine) UpdateProgress(ctx context.Context, taskID id.TaskID, workerID string, progressPct int) (*task.Task, error) {
	return eng.tracker.Update(ctx, taskID, workerID, progressPct)
}

// Complete finishes a claimed task. On success the result document is
// stored; on failure the coordinator decides between retry and
// dead-letter based on the attempt budget.
func (eng *Engine) Complete(ctx context.Context, taskID id.TaskID, workerID string, success bool, result json.RawMessage, errorMessage string) (*task.Task, error) {
	t, err := eng.taskStore.CompleteTask(ctx, taskID, workerID, success, result, errorMessage)
	if err != nil {
		return nil, err
	}

	switch {
	case success:
		var elapsed time.Duration
		if t.ClaimedAt != nil && t.CompletedAt != nil {
			elapsed = t.CompletedAt.Sub(*t.ClaimedAt)
		}
		eng.extensions.EmitTaskCompleted(ctx, t, elapsed)
	case t.Status == task.StatusDeadLetter:
		eng.extensions.EmitTaskDeadLettered(ctx, t)
	default:
		eng.extensions.EmitTaskRetrying(ctx, t)
	}
	return t, nil
}

// Requeue replays a dead-lettered task: back to pending with a fresh
// attempt budget.
func (eng *Engine) Requeue(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return eng.deadLetter.Requeue(ctx, taskID)
}

// ──────────────────────────────────────────────────
// Worker registration and lifecycle
// ──────────────────────────────────────────────────

// Register registers a typed task handler with the engine's worker pool.
func Register[T any](eng *Engine, def *worker.Definition[T]) {
	worker.RegisterDefinition(eng.workers, def)
}

// RegisterCron registers a typed recurring schedule. A task of the
// definition's type is created through the normal validation and
// deduplication path each time the expression fires.
func RegisterCron[T any](eng *Engine, def *cron.Definition[T]) error {
	params, err := json.Marshal(def.Params)
	if err != nil {
		return fmt.Errorf("marshal cron params for %q: %w", def.Name, err)
	}
	return eng.scheduler.Register(def.Name, def.Schedule, def.TypeName, params, def.Priority)
}

// Start begins background processing: the lease sweeper, the cron
// scheduler, and the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.c.Start(ctx); err != nil {
		return err
	}
	if err := eng.scheduler.Start(ctx); err != nil {
		return err
	}
	return eng.pool.Start(ctx)
}

// Stop gracefully shuts down the engine: the cron scheduler and worker
// pool first so in-flight tasks can finish, then the coordinator.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("cron scheduler stop error", slog.String("error", err.Error()))
	}
	if err := eng.pool.Stop(ctx); err != nil {
		eng.logger.Error("worker pool stop error", slog.String("error", err.Error()))
	}
	return eng.c.Stop(ctx)
}

// ──────────────────────────────────────────────────
// Subsystem accessors
// ──────────────────────────────────────────────────

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Types returns the task type registry.
func (eng *Engine) Types() *tasktype.Registry { return eng.types }

// Coordinator returns the underlying Coordinator.
func (eng *Engine) Coordinator() *taskgrid.Coordinator { return eng.c }

// DeadLetters returns the dead-letter manager for inspection and replay.
func (eng *Engine) DeadLetters() *deadletter.Manager { return eng.deadLetter }

// Pool returns the engine's worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Sweeper returns the lease sweeper.
func (eng *Engine) Sweeper() *claim.Sweeper { return eng.sweeper }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// QuotaManager returns the quota manager, or nil if no quota configs
// were provided.
func (eng *Engine) QuotaManager() *quota.Manager { return eng.quotaManager }

// Compile-time check: the engine is a claim source for worker pools.
var _ worker.Source = (*Engine)(nil)

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/backoff"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

// QuotaManager controls per-type rate limiting and concurrency. The
// pool calls Acquire before claiming a task of a type and Release
// after execution completes.
type QuotaManager interface {
	// Acquire checks rate limits and concurrency for the type.
	// Returns true if a claim may proceed.
	Acquire(typeName string) bool
	// Release decrements the active count for the type.
	Release(typeName string)
}

// Pool manages a set of concurrent worker goroutines that claim tasks
// for the registered types and execute them through the Executor.
type Pool struct {
	source      Source
	executor    *Executor
	registry    *Registry
	concurrency int
	poll        backoff.Strategy
	workerID    id.WorkerID
	logger      *slog.Logger

	// Quota manager (optional).
	quota QuotaManager

	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	activeTasks map[string]context.CancelFunc
	activeMu    sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollStrategy sets the idle backoff used between empty claim
// passes. Defaults to backoff.DefaultPollStrategy().
func WithPollStrategy(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.poll = s }
}

// WithQuotaManager sets the quota manager for rate limiting and
// concurrency control.
func WithQuotaManager(m QuotaManager) PoolOption {
	return func(p *Pool) { p.quota = m }
}

// WithWorkerID sets a fixed worker identity. Defaults to a fresh ID.
func WithWorkerID(workerID id.WorkerID) PoolOption {
	return func(p *Pool) { p.workerID = workerID }
}

// NewPool creates a worker pool.
func NewPool(source Source, executor *Executor, registry *Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		source:      source,
		executor:    executor,
		registry:    registry,
		concurrency: 10,
		poll:        backoff.DefaultPollStrategy(),
		workerID:    id.NewWorkerID(),
		logger:      logger,
		stopCh:      make(chan struct{}),
		activeTasks: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("types", p.registry.TypeNames()),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active tasks are cancelled when time
// runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active tasks")
		p.cancelActiveTasks()
		p.wg.Wait()
	}

	return nil
}

// claimLoop is run by each worker goroutine. It cycles over the
// registered types claiming one task at a time, backing off when a
// full pass finds nothing.
func (p *Pool) claimLoop() {
	defer p.wg.Done()

	idle := 0
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.claimPass() {
			idle = 0
			continue
		}

		idle++
		p.sleep(idle)
	}
}

// claimPass tries each registered type once. Reports whether any task
// was executed.
func (p *Pool) claimPass() bool {
	for _, typeName := range p.registry.TypeNames() {
		select {
		case <-p.stopCh:
			return false
		default:
		}

		if p.quota != nil && !p.quota.Acquire(typeName) {
			continue
		}

		t, err := p.source.Claim(context.Background(), typeName, p.workerID.String())
		if err != nil {
			if p.quota != nil {
				p.quota.Release(typeName)
			}
			if !errors.Is(err, taskgrid.ErrNoneAvailable) {
				p.logger.Error("claim error",
					slog.String("type", typeName),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		p.run(t)
		if p.quota != nil {
			p.quota.Release(typeName)
		}
		return true
	}
	return false
}

// run executes a single claimed task with cancellation tracking.
func (p *Pool) run(t *task.Task) {
	ctx, cancel := context.WithCancel(context.Background())
	p.trackTask(t.ID.String(), cancel)

	if execErr := p.executor.Execute(ctx, t, p.workerID.String()); execErr != nil {
		p.logger.Debug("task execution failed",
			slog.String("task_id", t.ID.String()),
			slog.String("type", t.TypeName),
			slog.String("error", execErr.Error()),
		)
	}

	p.untrackTask(t.ID.String())
	cancel()
}

func (p *Pool) trackTask(taskID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	p.activeTasks[taskID] = cancel
}

func (p *Pool) untrackTask(taskID string) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	delete(p.activeTasks, taskID)
}

func (p *Pool) cancelActiveTasks() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for _, cancel := range p.activeTasks {
		cancel()
	}
}

// sleep waits for the idle backoff delay or shutdown.
func (p *Pool) sleep(idle int) {
	timer := time.NewTimer(p.poll.Delay(idle))
	defer timer.Stop()

	select {
	case <-p.stopCh:
	case <-timer.C:
	}
}

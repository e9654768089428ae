package claim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskgrid/taskgrid/task"
)

// Sweeper periodically reclaims tasks whose claim lease has expired.
// It is the safety net behind the inline sweep in Coordinator.Claim:
// with no claim traffic, expired leases would otherwise sit claimed
// forever.
type Sweeper struct {
	store    task.Store
	interval time.Duration
	logger   *slog.Logger
	hooks    Hooks

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the structured logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// WithSweeperHooks sets the lease-lifecycle event sink.
func WithSweeperHooks(h Hooks) SweeperOption {
	return func(s *Sweeper) { s.hooks = h }
}

// NewSweeper creates a sweeper that runs every interval. An interval
// of zero disables the loop; Start becomes a no-op.
func NewSweeper(store task.Store, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background sweep loop. Idempotent.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.interval <= 0 {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.sweepLoop()

	s.logger.Info("lease sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Stop halts the sweep loop and waits for the in-flight sweep, if any,
// to finish or the context to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SweepOnce(context.Background())
		}
	}
}

// SweepOnce runs a single reclamation pass. Exposed so operators can
// trigger a sweep out of band.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if err := reclaim(ctx, s.store, s.logger, s.hooks); err != nil {
		s.logger.Error("lease sweep failed", slog.String("error", err.Error()))
	}
}

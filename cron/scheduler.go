package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/taskgrid/taskgrid/task"
)

// Scheduler errors.
var (
	ErrEntryExists   = errors.New("taskgrid: cron entry already registered")
	ErrEntryNotFound = errors.New("taskgrid: cron entry not found")
)

// CreateFunc is the callback the scheduler uses to create tasks.
// This breaks the import cycle: the engine provides the implementation.
type CreateFunc func(ctx context.Context, typeName string, params json.RawMessage, opts ...task.Option) (*task.Task, bool, error)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler evaluates registered entries on a tick loop and creates a
// task for each entry that has come due. Entries live in memory; every
// instance registers its own schedule set at startup, and the creation
// path's fingerprint deduplication keeps concurrent instances from
// producing duplicate in-flight tasks.
type Scheduler struct {
	create CreateFunc
	logger *slog.Logger

	tickInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*Entry
	// schedules caches the parsed expression per entry name.
	schedules map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler that creates tasks through fn.
func NewScheduler(fn CreateFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		create:       fn,
		logger:       slog.Default(),
		tickInterval: 1 * time.Second,
		entries:      make(map[string]*Entry),
		schedules:    make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a recurring schedule. The entry starts enabled, with
// its first firing at the next time the expression matches.
func (s *Scheduler) Register(name, schedule, typeName string, params json.RawMessage, priority int) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("taskgrid: parse cron schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrEntryExists, name)
	}

	next := sched.Next(time.Now().UTC())
	s.entries[name] = &Entry{
		Name:      name,
		Schedule:  schedule,
		TypeName:  typeName,
		Params:    params,
		Priority:  priority,
		Enabled:   true,
		NextRunAt: &next,
	}
	s.schedules[name] = sched
	return nil
}

// Enable resumes a paused entry.
func (s *Scheduler) Enable(name string) error {
	return s.setEnabled(name, true)
}

// Disable pauses an entry without removing it.
func (s *Scheduler) Disable(name string) error {
	return s.setEnabled(name, false)
}

func (s *Scheduler) setEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	entry.Enabled = enabled
	return nil
}

// Remove deletes an entry.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	delete(s.entries, name)
	delete(s.schedules, name)
	return nil
}

// Entries returns a snapshot of all registered entries.
func (s *Scheduler) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.clone())
	}
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick loop.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires every entry that is enabled and due.
func (s *Scheduler) tick() {
	ctx := context.Background()
	now := time.Now().UTC()

	for _, entry := range s.dueEntries(now) {
		s.fireEntry(ctx, entry, now)
	}
}

// dueEntries returns copies of entries that should fire at now.
func (s *Scheduler) dueEntries(now time.Time) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*Entry
	for _, entry := range s.entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		due = append(due, entry.clone())
	}
	return due
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	var opts []task.Option
	if entry.Priority != 0 {
		opts = append(opts, task.WithPriority(entry.Priority))
	}

	t, deduplicated, err := s.create(ctx, entry.TypeName, entry.Params, opts...)
	if err != nil {
		s.logger.Error("cron task create error",
			slog.String("cron_name", entry.Name),
			slog.String("task_type", entry.TypeName),
			slog.String("error", err.Error()),
		)
		// Still advance NextRunAt so a persistently failing entry
		// does not fire on every tick.
		s.advance(entry.Name, now, false)
		return
	}

	s.advance(entry.Name, now, true)

	s.logger.Info("cron fired",
		slog.String("cron_name", entry.Name),
		slog.String("task_type", entry.TypeName),
		slog.String("task_id", t.ID.String()),
		slog.Bool("deduplicated", deduplicated),
	)
}

// advance records a firing and computes the next run time.
func (s *Scheduler) advance(name string, now time.Time, fired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return // Removed while firing.
	}
	if fired {
		at := now
		entry.LastRunAt = &at
	}
	if sched, ok := s.schedules[name]; ok {
		next := sched.Next(now)
		entry.NextRunAt = &next
	}
}

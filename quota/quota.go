// Package quota controls per-task-type claim throughput: concurrency
// caps and token-bucket rate limits applied on the worker side before
// a claim request is issued.
package quota

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-type behaviour such as rate limiting and concurrency.
type Config struct {
	// TypeName is the task type identifier (must match the task's
	// type name).
	TypeName string

	// MaxConcurrency limits how many tasks of this type may run
	// simultaneously across the local worker pool. Zero means no
	// type-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained tasks per second that may be
	// claimed for this type. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// typeState tracks runtime state for a single task type.
type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-type rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	types map[string]*typeState
}

// NewManager creates a Manager with the given type configurations.
// Types not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		types: make(map[string]*typeState, len(configs)),
	}
	for _, cfg := range configs {
		m.types[cfg.TypeName] = newTypeState(cfg)
	}
	return m
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// Acquire checks rate limits and concurrency for the given task type.
// If execution is allowed it increments the active counter and returns
// true. The caller MUST call Release when the task completes.
func (m *Manager) Acquire(typeName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.types[typeName]
	if ts == nil {
		return true
	}
	if ts.limiter != nil && !ts.limiter.Allow() {
		return false
	}
	if ts.config.MaxConcurrency > 0 && ts.active >= ts.config.MaxConcurrency {
		return false
	}
	ts.active++
	return true
}

// Release decrements the active task count for the type.
func (m *Manager) Release(typeName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[typeName]; ts != nil && ts.active > 0 {
		ts.active--
	}
}

// SetConfig dynamically updates (or creates) a type configuration.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.types[cfg.TypeName]
	ts := newTypeState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.TypeName] = ts
}

// ActiveCount returns the current number of active tasks for a type.
func (m *Manager) ActiveCount(typeName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[typeName]; ts != nil {
		return ts.active
	}
	return 0
}

package taskgrid

import "time"

// Config holds configuration for the Coordinator.
type Config struct {
	// LeaseDuration is the default claim lease granted to workers that do
	// not request one explicitly.
	LeaseDuration time.Duration

	// SweepInterval is how often the background sweeper reclaims tasks
	// whose lease has expired. Zero disables the background sweep; expired
	// leases are then reclaimed lazily at the next claim.
	SweepInterval time.Duration

	// DefaultMaxAttempts is the attempt budget assigned to tasks created
	// without an explicit one. A task moves to dead_letter when its
	// attempts reach this bound.
	DefaultMaxAttempts int

	// MaxPatternLength bounds the length of `pattern` expressions accepted
	// in parameter schemas. Untrusted schemas cannot register unbounded
	// regular expressions.
	MaxPatternLength int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LeaseDuration:      2 * time.Minute,
		SweepInterval:      15 * time.Second,
		DefaultMaxAttempts: 3,
		MaxPatternLength:   512,
		ShutdownTimeout:    30 * time.Second,
	}
}

// Package taskgrid provides a typed task-queue coordination engine for Go.
// It offers schema-validated task types, fingerprint deduplication, an
// at-most-one-worker claim protocol with time-bounded leases, progress
// reporting, and retry with a dead-letter terminal state.
//
// TaskGrid is designed as a library, not a service. Import it, configure a
// store, register task types, and coordinate a shared-nothing pool of
// workers through atomic store operations.
//
// # Quick Start
//
//	c, err := taskgrid.New(
//	    taskgrid.WithStore(memory.New()),
//	    taskgrid.WithLeaseDuration(2*time.Minute),
//	)
//
// # Architecture
//
// TaskGrid follows a composable store pattern where each subsystem
// (tasktype, task) defines its own store interface and a single backend
// implements all of them. The store exposes only atomic, ownership-checked
// operations — claim, conditional complete, conditional progress — so all
// concurrency control flows through the store boundary.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers. Worker identities are opaque
// caller-supplied strings.
package taskgrid

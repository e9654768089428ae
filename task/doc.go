// Package task defines the task entity, its lifecycle state machine,
// and the store interface every backend implements.
//
// # Lifecycle
//
//	pending → claimed → completed
//	pending → claimed → pending (retry, attempts remaining)
//	pending → claimed → dead_letter (attempt budget spent)
//
// completed and dead_letter are terminal. A claimed task whose lease
// expires is reclaimed through the same failure transition as an
// explicit failure report, so a crashed worker can never strand a task.
//
// # Ownership
//
// The store is the single shared mutable resource. Claim, completion,
// and progress are conditional atomic operations keyed on
// (status, claimed_by); there is no raw read-then-write surface, which
// is what makes the at-most-one-worker guarantee enforceable.
package task

package cron

// Definition is a typed cron definition. T is the parameter type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this cron entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	// TypeName is the task type to create on each firing.
	TypeName string

	// Params are the parameters every created task carries.
	Params T

	// Priority overrides the default task priority (optional).
	Priority int
}

package tasktype

import (
	"context"

	"github.com/taskgrid/taskgrid/id"
)

// ListOpts controls filtering and pagination for task type list queries.
type ListOpts struct {
	// ActiveOnly restricts the result to active types.
	ActiveOnly bool
	// Limit is the maximum number of types to return. Zero means no limit.
	Limit int
	// Offset is the number of types to skip.
	Offset int
}

// Store defines the persistence contract for task types.
type Store interface {
	// PutTaskType inserts or replaces a task type keyed by name.
	// Re-registration preserves the original ID and CreatedAt; the
	// store never hard-deletes a type.
	PutTaskType(ctx context.Context, t *TaskType) error

	// GetTaskType retrieves a task type by ID.
	GetTaskType(ctx context.Context, typeID id.TaskTypeID) (*TaskType, error)

	// GetTaskTypeByName retrieves a task type by its unique name.
	// Deactivated types are returned; callers decide whether a
	// deactivated type is acceptable for their operation.
	GetTaskTypeByName(ctx context.Context, name string) (*TaskType, error)

	// ListTaskTypes returns task types matching the given options,
	// ordered by name.
	ListTaskTypes(ctx context.Context, opts ListOpts) ([]*TaskType, error)

	// DeactivateTaskType clears the active flag on the named type.
	DeactivateTaskType(ctx context.Context, name string) error
}

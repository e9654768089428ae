package worker

import (
	"context"
	"encoding/json"

	"github.com/taskgrid/taskgrid/task"
)

// Definition is a typed task handler definition.
// T is the parameter type (must match the type's registered schema).
type Definition[T any] struct {
	// TypeName is the task type this handler processes.
	TypeName string

	// Handler processes one claimed task. The returned document is
	// stored as the task result on success.
	Handler func(ctx context.Context, t *task.Task, params T) (json.RawMessage, error)
}

// NewDefinition creates a typed task handler definition.
func NewDefinition[T any](typeName string, handler func(ctx context.Context, t *task.Task, params T) (json.RawMessage, error)) *Definition[T] {
	return &Definition[T]{
		TypeName: typeName,
		Handler:  handler,
	}
}

// Package store defines the composite persistence interface for
// TaskGrid. Each subsystem (tasktype, task) declares its own store
// interface next to its entity; a single backend implements all of
// them plus the lifecycle operations.
package store

import (
	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// Store is the composite interface a TaskGrid backend implements.
type Store interface {
	taskgrid.Storer
	tasktype.Store
	task.Store
}

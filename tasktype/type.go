package tasktype

import (
	"encoding/json"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
)

// TaskType is a named, versioned contract describing valid parameters
// for a class of work. Names are globally unique and follow a dotted
// namespace convention ("Namespace.Action"). Types are never hard
// deleted once a task references them; deactivation removes them from
// task creation only.
type TaskType struct {
	taskgrid.Entity

	ID          id.TaskTypeID   `json:"id"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	ParamSchema json.RawMessage `json:"param_schema"`
	Active      bool            `json:"active"`
}

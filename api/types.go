package api

import (
	"encoding/json"

	"github.com/taskgrid/taskgrid/task"
)

// RegisterTypeRequest is the payload for registering or updating a task type.
type RegisterTypeRequest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	ParamSchema json.RawMessage `json:"param_schema"`
}

// ListTypesRequest filters the task type listing.
type ListTypesRequest struct {
	Active bool `json:"active"`
}

// GetTypeRequest is the (path-bound) request for a single task type.
type GetTypeRequest struct{}

// DeactivateTypeRequest is the (path-bound) request for deactivation.
type DeactivateTypeRequest struct{}

// CreateTaskRequest is the payload for creating a task.
type CreateTaskRequest struct {
	Type        string          `json:"type"`
	Params      json.RawMessage `json:"params"`
	Priority    int             `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
}

// CreateTaskResponse is the created (or coalesced) task with the
// deduplication verdict alongside its fields.
type CreateTaskResponse struct {
	*task.Task
	Deduplicated bool `json:"deduplicated"`
}

// ListTasksRequest filters and paginates the task listing.
type ListTasksRequest struct {
	Status string `json:"status"`
	Type   string `json:"type"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ListTasksResponse is a page of tasks plus the unpaginated total.
type ListTasksResponse struct {
	Data   []*task.Task `json:"data"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// GetTaskRequest is the (path-bound) request for a single task.
type GetTaskRequest struct{}

// ClaimRequest asks for the next eligible task of a type.
type ClaimRequest struct {
	TaskTypeID string `json:"task_type_id"`
	WorkerID   string `json:"worker_id"`
}

// ClaimUnavailableResponse is returned when the claim queue is empty.
type ClaimUnavailableResponse struct {
	Error string `json:"error"`
}

// ProgressRequest records a progress update for a claimed task.
type ProgressRequest struct {
	WorkerID string `json:"worker_id"`
	Progress int    `json:"progress"`
}

// CompleteRequest reports the outcome of a claimed task.
type CompleteRequest struct {
	WorkerID     string          `json:"worker_id"`
	Success      bool            `json:"success"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// ListDeadLettersRequest filters and paginates the dead-letter listing.
type ListDeadLettersRequest struct {
	Type   string `json:"type"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// RequeueRequest is the (path-bound) request for a dead-letter replay.
type RequeueRequest struct{}

// DeadLetterCountResponse carries the dead-letter total.
type DeadLetterCountResponse struct {
	Count int64 `json:"count"`
}

// HealthResponse reports process liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// defaultLimit caps list page sizes; zero or negative requests get the
// default page.
func defaultLimit(limit int) int {
	const def = 50
	if limit <= 0 {
		return def
	}
	return limit
}

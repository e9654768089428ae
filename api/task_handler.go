package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

func (a *API) createTask(ctx forge.Context, req *CreateTaskRequest) (*CreateTaskResponse, error) {
	if req.Type == "" {
		return nil, forge.BadRequest("type is required")
	}
	if len(req.Params) == 0 {
		return nil, forge.BadRequest("params is required")
	}

	opts := []task.Option{task.WithPriority(req.Priority)}
	if req.MaxAttempts > 0 {
		opts = append(opts, task.WithMaxAttempts(req.MaxAttempts))
	}

	created, deduplicated, err := a.eng.CreateTask(ctx.Context(), req.Type, req.Params, opts...)
	if err != nil {
		return nil, mapStoreError(err)
	}

	resp := &CreateTaskResponse{Task: created, Deduplicated: deduplicated}
	status := http.StatusCreated
	if deduplicated {
		status = http.StatusOK
	}
	return resp, ctx.JSON(status, resp)
}

func (a *API) listTasks(ctx forge.Context, req *ListTasksRequest) (*ListTasksResponse, error) {
	status := task.Status(req.Status)
	if req.Status != "" && !status.Valid() {
		return nil, forge.BadRequest(fmt.Sprintf("unknown status %q", req.Status))
	}

	c := ctx.Context()
	limit := defaultLimit(req.Limit)

	tasks, err := a.eng.ListTasks(c, task.ListOpts{
		Status:   status,
		TypeName: req.Type,
		Limit:    limit,
		Offset:   req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	total, err := a.eng.CountTasks(c, task.CountOpts{Status: status, TypeName: req.Type})
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	resp := &ListTasksResponse{Data: tasks, Total: total, Limit: limit, Offset: req.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) getTask(ctx forge.Context, _ *GetTaskRequest) (*task.Task, error) {
	taskID, err := id.ParseTaskID(ctx.Param("taskId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid task ID: %v", err))
	}

	t, err := a.eng.GetTask(ctx.Context(), taskID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return t, ctx.JSON(http.StatusOK, t)
}

func (a *API) claimTask(ctx forge.Context, req *ClaimRequest) (*task.Task, error) {
	if req.WorkerID == "" {
		return nil, forge.BadRequest("worker_id is required")
	}
	typeID, err := id.ParseTaskTypeID(req.TaskTypeID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid task type ID: %v", err))
	}

	tt, err := a.eng.GetTypeByID(ctx.Context(), typeID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	t, err := a.eng.Claim(ctx.Context(), tt.Name, req.WorkerID)
	if errors.Is(err, taskgrid.ErrNoneAvailable) {
		// An empty queue is a signal, not a failure.
		return nil, ctx.JSON(http.StatusOK, ClaimUnavailableResponse{Error: "no tasks available"})
	}
	if err != nil {
		return nil, mapStoreError(err)
	}

	return t, ctx.JSON(http.StatusOK, t)
}

func (a *API) updateProgress(ctx forge.Context, req *ProgressRequest) (*task.Task, error) {
	taskID, err := id.ParseTaskID(ctx.Param("taskId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid task ID: %v", err))
	}
	if req.WorkerID == "" {
		return nil, forge.BadRequest("worker_id is required")
	}

	t, err := a.eng.UpdateProgress(ctx.Context(), taskID, req.WorkerID, req.Progress)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return t, ctx.JSON(http.StatusOK, t)
}

func (a *API) completeTask(ctx forge.Context, req *CompleteRequest) (*task.Task, error) {
	taskID, err := id.ParseTaskID(ctx.Param("taskId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid task ID: %v", err))
	}
	if req.WorkerID == "" {
		return nil, forge.BadRequest("worker_id is required")
	}
	if !req.Success && req.ErrorMessage == "" {
		return nil, forge.BadRequest("error_message is required when success is false")
	}

	t, err := a.eng.Complete(ctx.Context(), taskID, req.WorkerID, req.Success, req.Result, req.ErrorMessage)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return t, ctx.JSON(http.StatusOK, t)
}

func (a *API) health(ctx forge.Context) error {
	return ctx.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// mapStoreError converts taskgrid sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isNotFound(err):
		return forge.NotFound(err.Error())
	case isBadRequest(err):
		return forge.BadRequest(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, taskgrid.ErrTaskNotFound) ||
		errors.Is(err, taskgrid.ErrTaskTypeNotFound)
}

func isBadRequest(err error) bool {
	return errors.Is(err, taskgrid.ErrInvalidSchema) ||
		errors.Is(err, taskgrid.ErrInvalidParams) ||
		errors.Is(err, taskgrid.ErrTaskTypeInactive) ||
		errors.Is(err, taskgrid.ErrInvalidProgress) ||
		errors.Is(err, taskgrid.ErrNotDeadLettered) ||
		errors.Is(err, taskgrid.ErrNotClaimedByCaller) ||
		errors.Is(err, taskgrid.ErrStaleClaim) ||
		errors.Is(err, taskgrid.ErrInvalidState)
}

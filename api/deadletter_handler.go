package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

func (a *API) listDeadLetters(ctx forge.Context, req *ListDeadLettersRequest) ([]*task.Task, error) {
	tasks, err := a.eng.DeadLetters().List(ctx.Context(), req.Type, defaultLimit(req.Limit), req.Offset)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	return tasks, ctx.JSON(http.StatusOK, tasks)
}

func (a *API) countDeadLetters(ctx forge.Context) error {
	count, err := a.eng.DeadLetters().Count(ctx.Context(), "")
	if err != nil {
		return fmt.Errorf("count dead letters: %w", err)
	}

	return ctx.JSON(http.StatusOK, DeadLetterCountResponse{Count: count})
}

func (a *API) requeueDeadLetter(ctx forge.Context, _ *RequeueRequest) (*task.Task, error) {
	taskID, err := id.ParseTaskID(ctx.Param("taskId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid task ID: %v", err))
	}

	t, err := a.eng.Requeue(ctx.Context(), taskID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return t, ctx.JSON(http.StatusOK, t)
}

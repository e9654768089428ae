// Package api provides HTTP handlers for the TaskGrid API.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/taskgrid/taskgrid/engine"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// API wires all Forge-style HTTP handlers together for the taskgrid system.
type API struct {
	eng    *engine.Engine
	router forge.Router
}

// New creates an API from a taskgrid Engine.
func New(eng *engine.Engine, router forge.Router) *API {
	return &API{eng: eng, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all taskgrid API routes into the given Forge
// router with full OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerTypeRoutes(router)
	a.registerTaskRoutes(router)
	a.registerDeadLetterRoutes(router)
	a.registerHealthRoutes(router)
}

// registerTypeRoutes registers task type management routes.
func (a *API) registerTypeRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("task-types"))

	_ = g.POST("/task-types", a.registerType,
		forge.WithSummary("Register task type"),
		forge.WithDescription("Registers or updates a task type with its parameter schema."),
		forge.WithOperationID("registerTaskType"),
		forge.WithRequestSchema(RegisterTypeRequest{}),
		forge.WithCreatedResponse(&tasktype.TaskType{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/task-types", a.listTypes,
		forge.WithSummary("List task types"),
		forge.WithDescription("Returns registered task types, optionally restricted to active ones."),
		forge.WithOperationID("listTaskTypes"),
		forge.WithRequestSchema(ListTypesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Task types", []*tasktype.TaskType{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/task-types/:name", a.getType,
		forge.WithSummary("Get task type"),
		forge.WithDescription("Returns a task type by name, including deactivated ones."),
		forge.WithOperationID("getTaskType"),
		forge.WithResponseSchema(http.StatusOK, "Task type details", &tasktype.TaskType{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/task-types/:name/deactivate", a.deactivateType,
		forge.WithSummary("Deactivate task type"),
		forge.WithDescription("Removes a task type from task creation without deleting it."),
		forge.WithOperationID("deactivateTaskType"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

// registerTaskRoutes registers task lifecycle routes.
func (a *API) registerTaskRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("tasks"))

	_ = g.POST("/tasks", a.createTask,
		forge.WithSummary("Create task"),
		forge.WithDescription("Validates parameters against the type schema and creates a task, coalescing in-flight duplicates."),
		forge.WithOperationID("createTask"),
		forge.WithRequestSchema(CreateTaskRequest{}),
		forge.WithCreatedResponse(CreateTaskResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/tasks", a.listTasks,
		forge.WithSummary("List tasks"),
		forge.WithDescription("Returns tasks filtered by status and type, with pagination."),
		forge.WithOperationID("listTasks"),
		forge.WithRequestSchema(ListTasksRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Task page", ListTasksResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/tasks/:taskId", a.getTask,
		forge.WithSummary("Get task"),
		forge.WithDescription("Returns details of a specific task."),
		forge.WithOperationID("getTask"),
		forge.WithResponseSchema(http.StatusOK, "Task details", &task.Task{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/tasks/claim", a.claimTask,
		forge.WithSummary("Claim task"),
		forge.WithDescription("Atomically claims the next eligible task of a type for a worker."),
		forge.WithOperationID("claimTask"),
		forge.WithRequestSchema(ClaimRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Claimed task", &task.Task{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/tasks/:taskId/progress", a.updateProgress,
		forge.WithSummary("Update progress"),
		forge.WithDescription("Records a progress update for a task claimed by the calling worker."),
		forge.WithOperationID("updateTaskProgress"),
		forge.WithRequestSchema(ProgressRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated task", &task.Task{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/tasks/:taskId/complete", a.completeTask,
		forge.WithSummary("Complete task"),
		forge.WithDescription("Reports success or failure for a task claimed by the calling worker."),
		forge.WithOperationID("completeTask"),
		forge.WithRequestSchema(CompleteRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Completed task", &task.Task{}),
		forge.WithErrorResponses(),
	)
}

// registerDeadLetterRoutes registers dead-letter management routes.
func (a *API) registerDeadLetterRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("dead-letters"))

	_ = g.GET("/dead-letters", a.listDeadLetters,
		forge.WithSummary("List dead-lettered tasks"),
		forge.WithDescription("Returns tasks that exhausted their attempts."),
		forge.WithOperationID("listDeadLetters"),
		forge.WithRequestSchema(ListDeadLettersRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Dead-lettered tasks", []*task.Task{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/dead-letters/count", a.countDeadLetters,
		forge.WithSummary("Dead-letter count"),
		forge.WithDescription("Returns the number of dead-lettered tasks."),
		forge.WithOperationID("countDeadLetters"),
		forge.WithResponseSchema(http.StatusOK, "Dead-letter count", DeadLetterCountResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/dead-letters/:taskId/requeue", a.requeueDeadLetter,
		forge.WithSummary("Requeue dead-lettered task"),
		forge.WithDescription("Resets a dead-lettered task to pending with a fresh attempt budget."),
		forge.WithOperationID("requeueDeadLetter"),
		forge.WithResponseSchema(http.StatusOK, "Requeued task", &task.Task{}),
		forge.WithErrorResponses(),
	)
}

// registerHealthRoutes registers the liveness route.
func (a *API) registerHealthRoutes(router forge.Router) {
	_ = router.GET("/healthz", a.health,
		forge.WithSummary("Liveness"),
		forge.WithDescription("Reports process liveness only, not task-store health."),
		forge.WithOperationID("health"),
		forge.WithResponseSchema(http.StatusOK, "Liveness", HealthResponse{}),
	)
}

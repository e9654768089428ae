package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionTypeRegistered   = "type.registered"
	ActionTaskCreated      = "task.created"
	ActionTaskClaimed      = "task.claimed"
	ActionProgressUpdated  = "task.progress_updated"
	ActionTaskCompleted    = "task.completed"
	ActionTaskRetrying     = "task.retrying"
	ActionTaskDeadLettered = "task.dead_lettered"
	ActionLeaseReclaimed   = "task.lease_reclaimed"
	ActionTaskRequeued     = "task.requeued"
)

// Audit event categories group related actions.
const (
	CategoryType = "taskgrid.type"
	CategoryTask = "taskgrid.task"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceType = "task_type"
	ResourceTask = "task"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionTypeRegistered,
		ActionTaskCreated,
		ActionTaskClaimed,
		ActionProgressUpdated,
		ActionTaskCompleted,
		ActionTaskRetrying,
		ActionTaskDeadLettered,
		ActionLeaseReclaimed,
		ActionTaskRequeued,
	}
}

package redis

// Redis key naming conventions for taskgrid data.
// All keys are prefixed with "taskgrid:" to avoid collisions.

const keyPrefix = "taskgrid:"

// ── Task type keys ──

// typeKey returns the key for a task type entity: taskgrid:type:{name}
func typeKey(name string) string { return keyPrefix + "type:" + name }

// typeNamesKey is the Set tracking all type names for enumeration.
const typeNamesKey = keyPrefix + "type_names"

// typeByIDKey maps type IDs to names for lookup by ID.
const typeByIDKey = keyPrefix + "type_by_id"

// ── Task keys ──

// taskKey returns the key for a task entity: taskgrid:task:{id}
func taskKey(id string) string { return keyPrefix + "task:" + id }

// taskIDsKey is the Set tracking all task IDs for enumeration.
const taskIDsKey = keyPrefix + "task_ids"

// pendingKey returns the Sorted Set key holding the pending tasks of a
// type: taskgrid:pending:{typeName}
func pendingKey(typeName string) string { return keyPrefix + "pending:" + typeName }

// fingerprintKey returns the guard key for an in-flight fingerprint:
// taskgrid:fp:{fingerprint}. Its value is the owning task ID.
func fingerprintKey(fp string) string { return keyPrefix + "fp:" + fp }

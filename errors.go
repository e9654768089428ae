package taskgrid

import "errors"

var (
	// Store errors.
	ErrNoStore          = errors.New("taskgrid: no store configured")
	ErrStoreClosed      = errors.New("taskgrid: store closed")
	ErrStoreUnavailable = errors.New("taskgrid: store unavailable")
	ErrMigrationFailed  = errors.New("taskgrid: migration failed")

	// Not found errors.
	ErrTaskNotFound     = errors.New("taskgrid: task not found")
	ErrTaskTypeNotFound = errors.New("taskgrid: task type not found")

	// Registration and creation errors.
	ErrInvalidSchema    = errors.New("taskgrid: invalid parameter schema")
	ErrTaskTypeInactive = errors.New("taskgrid: task type is deactivated")
	ErrInvalidParams    = errors.New("taskgrid: params do not satisfy the type schema")

	// Claim protocol errors.
	// ErrNoneAvailable signals an empty claim queue. It is a signal, not a
	// failure: callers poll again with backoff.
	ErrNoneAvailable      = errors.New("taskgrid: no tasks available")
	ErrNotClaimedByCaller = errors.New("taskgrid: task not claimed by caller")
	ErrStaleClaim         = errors.New("taskgrid: claim is stale")

	// State errors.
	ErrInvalidProgress = errors.New("taskgrid: invalid progress value")
	ErrInvalidState    = errors.New("taskgrid: invalid state transition")
	ErrNotDeadLettered = errors.New("taskgrid: task is not dead-lettered")
)

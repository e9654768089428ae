package task

import (
	"encoding/json"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task is waiting to be claimed by a worker.
	StatusPending Status = "pending"
	// StatusClaimed means exactly one worker holds a live lease on the task.
	StatusClaimed Status = "claimed"
	// StatusCompleted means the task finished successfully. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed is the declared wire state for a failed attempt. No
	// persisted task rests in it: a failed attempt resolves atomically
	// to pending (retry) or dead_letter (budget exhausted).
	StatusFailed Status = "failed"
	// StatusDeadLetter means the task exhausted its attempt budget. Terminal.
	StatusDeadLetter Status = "dead_letter"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeadLetter
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusCompleted, StatusFailed, StatusDeadLetter:
		return true
	}
	return false
}

// Task represents a unit of work coordinated through the store.
//
// A Task is exclusively owned by the store for mutation: services
// request transitions through the store's atomic operations and never
// write fields directly.
type Task struct {
	taskgrid.Entity

	ID             id.TaskID       `json:"id"`
	TypeName       string          `json:"type"`
	Params         json.RawMessage `json:"params"`
	Fingerprint    string          `json:"fingerprint"`
	Status         Status          `json:"status"`
	Priority       int             `json:"priority"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	Progress       int             `json:"progress"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ClaimedBy      string          `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// LeaseExpired reports whether the task is claimed with a lease that
// has already passed at the given instant.
func (t *Task) LeaseExpired(now time.Time) bool {
	return t.Status == StatusClaimed &&
		t.LeaseExpiresAt != nil &&
		t.LeaseExpiresAt.Before(now)
}

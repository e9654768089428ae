// Package stream provides a real-time event broker for TaskGrid lifecycle
// events. It bridges the ext.Extension system to in-process consumers via
// topic-based pub/sub with credit-based flow control.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Task events.
	EventTaskCreated      EventType = "task.created"
	EventTaskClaimed      EventType = "task.claimed"
	EventTaskProgress     EventType = "task.progress_updated"
	EventTaskCompleted    EventType = "task.completed"
	EventTaskRetrying     EventType = "task.retrying"
	EventTaskDeadLettered EventType = "task.dead_lettered"
	EventLeaseReclaimed   EventType = "task.lease_reclaimed"
	EventTaskRequeued     EventType = "task.requeued"

	// Type events.
	EventTypeRegistered EventType = "type.registered"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// TaskEventData is the payload for task lifecycle events.
type TaskEventData struct {
	TaskID       string `json:"task_id"`
	TaskType     string `json:"task_type"`
	Status       string `json:"status,omitempty"`
	WorkerID     string `json:"worker_id,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`
	Progress     int    `json:"progress,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	Error        string `json:"error,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// TypeEventData is the payload for task type lifecycle events.
type TypeEventData struct {
	TypeID  string `json:"type_id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

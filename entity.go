package taskgrid

import "time"

// Entity carries the timestamps shared by all persisted TaskGrid records.
// Embed it in entity structs; stores maintain UpdatedAt on every mutation.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with both timestamps set to the current
// UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

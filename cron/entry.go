package cron

import (
	"encoding/json"
	"time"
)

// Entry represents a recurring task schedule.
type Entry struct {
	Name      string          `json:"name"`
	Schedule  string          `json:"schedule"`
	TypeName  string          `json:"type"`
	Params    json.RawMessage `json:"params,omitempty"`
	Priority  int             `json:"priority,omitempty"`
	Enabled   bool            `json:"enabled"`
	LastRunAt *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt *time.Time      `json:"next_run_at,omitempty"`
}

// clone returns a copy safe to hand to callers.
func (e *Entry) clone() *Entry {
	out := *e
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		out.LastRunAt = &t
	}
	if e.NextRunAt != nil {
		t := *e.NextRunAt
		out.NextRunAt = &t
	}
	return &out
}

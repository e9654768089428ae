package middleware

import (
	"context"
	"time"

	"github.com/taskgrid/taskgrid/task"
)

// Timeout returns middleware that enforces a single execution deadline
// on every handler call. When the deadline passes the context is
// cancelled and the handler should return context.DeadlineExceeded.
// A non-positive duration disables the deadline.
//
// The deadline should stay comfortably inside the claim lease so a
// slow handler fails explicitly instead of losing its claim to the
// lease sweeper mid-flight.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *task.Task, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}

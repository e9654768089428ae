package task

import "time"

// FailureOutcome decides where a failed attempt lands: back in the
// claim queue while attempts remain, dead_letter once the budget is
// spent. Attempts are counted at claim time, so the comparison is
// against the already-incremented value.
func FailureOutcome(attempts, maxAttempts int) Status {
	if attempts < maxAttempts {
		return StatusPending
	}
	return StatusDeadLetter
}

// ApplyClaim transitions a pending task to claimed for the given
// worker, granting a lease and counting the attempt. Callers must hold
// whatever lock makes the surrounding read-modify-write atomic.
func ApplyClaim(t *Task, workerID string, lease time.Duration, now time.Time) {
	expires := now.Add(lease)
	t.Status = StatusClaimed
	t.ClaimedBy = workerID
	t.ClaimedAt = &now
	t.LeaseExpiresAt = &expires
	t.Attempts++
	t.Progress = 0
	t.UpdatedAt = now
}

// ApplyFailure is the single transition out of claimed on any failure —
// an explicit failure report and a lease-expiry reclamation both route
// through here, so the two paths cannot diverge. The claim fields are
// cleared, the attempt count is kept, and the task lands in pending or
// dead_letter per FailureOutcome.
func ApplyFailure(t *Task, errorMessage string, now time.Time) {
	t.Status = FailureOutcome(t.Attempts, t.MaxAttempts)
	t.ErrorMessage = errorMessage
	t.ClaimedBy = ""
	t.ClaimedAt = nil
	t.LeaseExpiresAt = nil
	t.Progress = 0
	t.UpdatedAt = now
	if t.Status == StatusDeadLetter {
		t.CompletedAt = &now
	}
}

// ApplySuccess transitions a claimed task to completed with its result.
// ClaimedBy is kept so the record shows which worker completed it.
func ApplySuccess(t *Task, result []byte, now time.Time) {
	t.Status = StatusCompleted
	t.Result = result
	t.Progress = 100
	t.LeaseExpiresAt = nil
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// ApplyRequeue resets a dead-lettered task for another round of
// attempts. Used by dead-letter replay.
func ApplyRequeue(t *Task, now time.Time) {
	t.Status = StatusPending
	t.Attempts = 0
	t.Progress = 0
	t.ErrorMessage = ""
	t.Result = nil
	t.CompletedAt = nil
	t.UpdatedAt = now
}

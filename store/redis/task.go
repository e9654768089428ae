package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

// CreateTask stores the task as a Hash and adds it to the type's pending
// Sorted Set. The in-flight dedup guard is a SETNX on the fingerprint
// key: exactly one of two concurrent creates with the same fingerprint
// wins the guard, the other is handed the winner's task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) (*task.Task, bool, error) {
	tID := t.ID.String()
	fpKey := fingerprintKey(t.Fingerprint)

	// The guard can point at a task that reached a terminal state but
	// whose guard release has not landed yet; clear and retry.
	for attempt := 0; attempt < 3; attempt++ {
		won, err := s.client.SetNX(ctx, fpKey, tID, 0).Result()
		if err != nil {
			return nil, false, fmt.Errorf("taskgrid/redis: create task setnx: %w", err)
		}

		if won {
			pipe := s.client.TxPipeline()
			pipe.HSet(ctx, taskKey(tID), taskToMap(t))
			pipe.SAdd(ctx, taskIDsKey, tID)
			pipe.ZAdd(ctx, pendingKey(t.TypeName), goredis.Z{
				Score:  taskScore(t.Priority, t.CreatedAt),
				Member: tID,
			})
			if _, err := pipe.Exec(ctx); err != nil {
				return nil, false, fmt.Errorf("taskgrid/redis: create task: %w", err)
			}
			return t, false, nil
		}

		existingID, err := s.client.Get(ctx, fpKey).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue // guard released between SETNX and GET
			}
			return nil, false, fmt.Errorf("taskgrid/redis: create task get guard: %w", err)
		}

		existing, err := s.getTaskByKey(ctx, taskKey(existingID))
		if err == nil && !existing.Status.Terminal() {
			return existing, true, nil
		}
		if err != nil && !errors.Is(err, taskgrid.ErrTaskNotFound) {
			return nil, false, err
		}

		// Stale guard: the task it points at is gone or terminal.
		s.client.Del(ctx, fpKey)
	}
	return nil, false, fmt.Errorf("taskgrid/redis: create task %s: dedup retry budget exhausted", tID)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return s.getTaskByKey(ctx, taskKey(taskID.String()))
}

// ListTasks returns tasks matching the given options, oldest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("taskgrid/redis: list tasks smembers: %w", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.TypeName != "" && t.TypeName != opts.TypeName {
			continue
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID.String() < tasks[j].ID.String()
	})

	// Apply offset/limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(tasks) {
			return nil, nil
		}
		tasks = tasks[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(tasks) {
		tasks = tasks[:opts.Limit]
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("taskgrid/redis: count tasks smembers: %w", err)
	}

	var count int64
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.TypeName != "" && t.TypeName != opts.TypeName {
			continue
		}
		count++
	}
	return count, nil
}

// ClaimTask pops the best-scored pending task of the type and claims it
// for workerID. ZPOPMIN hands each member to exactly one caller, so two
// concurrent claims never receive the same task.
func (s *Store) ClaimTask(ctx context.Context, typeName, workerID string, lease time.Duration) (*task.Task, error) {
	qk := pendingKey(typeName)

	for {
		members, err := s.client.ZPopMin(ctx, qk, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("taskgrid/redis: claim zpopmin: %w", err)
		}
		if len(members) == 0 {
			return nil, taskgrid.ErrNoneAvailable
		}

		tID, ok := members[0].Member.(string)
		if !ok {
			continue
		}
		t, err := s.claimPopped(ctx, tID, workerID, lease)
		if err != nil {
			if errors.Is(err, errStaleMember) {
				continue // stale queue member, drop it
			}
			return nil, err
		}
		return t, nil
	}
}

// errStaleMember marks a popped queue member whose task is gone, no
// longer pending, or too contended to claim.
var errStaleMember = errors.New("stale queue member")

// claimPopped verifies a popped task is still pending and writes the
// claim, with the check and write under one WATCH/EXEC so the sweep's
// queue self-heal cannot hand the same task to a second claimer.
func (s *Store) claimPopped(ctx context.Context, tID, workerID string, lease time.Duration) (*task.Task, error) {
	key := taskKey(tID)

	var claimed *task.Task
	txn := func(tx *goredis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("taskgrid/redis: claim get task: %w", err)
		}
		if len(vals) == 0 {
			return errStaleMember
		}
		t, err := mapToTask(vals)
		if err != nil || t.Status != task.StatusPending {
			return errStaleMember
		}

		task.ApplyClaim(t, workerID, lease, time.Now().UTC())
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, taskToMap(t))
			return nil
		})
		if err != nil {
			return err
		}
		claimed = t
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue // key changed under the watch, re-check
		}
		if err != nil {
			return nil, err
		}
		return claimed, nil
	}
	return nil, errStaleMember
}

// SweepExpired reclaims every claimed task whose lease has passed,
// applying the same transition as an explicit failure report. The scan
// also restores pending tasks that dropped out of their queue between a
// pop and the claim write.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("taskgrid/redis: sweep smembers: %w", err)
	}

	var swept []*task.Task
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}

		if t.Status == task.StatusPending {
			// Self-heal: make sure every pending task sits in its queue.
			s.client.ZAddNX(ctx, pendingKey(t.TypeName), goredis.Z{
				Score:  taskScore(t.Priority, t.CreatedAt),
				Member: tID,
			})
			continue
		}
		if !t.LeaseExpired(now) {
			continue
		}

		task.ApplyFailure(t, "claim lease expired", now)
		if err := s.writeTask(ctx, t); err != nil {
			return nil, err
		}
		if err := s.settleQueues(ctx, t); err != nil {
			return nil, err
		}
		swept = append(swept, t)
	}
	return swept, nil
}

// CompleteTask finishes a claimed task on behalf of workerID. The
// ownership check and the transition write share one WATCH/EXEC, so a
// sweep or re-claim that lands mid-completion aborts the write instead
// of being clobbered by the stale holder's hash.
func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID, workerID string, success bool, result json.RawMessage, errorMessage string) (*task.Task, error) {
	return s.withClaimedTask(ctx, taskID, workerID, taskgrid.ErrStaleClaim, func(t *task.Task, now time.Time) error {
		if success {
			task.ApplySuccess(t, result, now)
		} else {
			task.ApplyFailure(t, errorMessage, now)
		}
		return nil
	})
}

// UpdateTaskProgress records a progress value for a claimed task.
// Progress must not regress while held by the same claimant.
func (s *Store) UpdateTaskProgress(ctx context.Context, taskID id.TaskID, workerID string, progress int) (*task.Task, error) {
	return s.withClaimedTask(ctx, taskID, workerID, taskgrid.ErrNotClaimedByCaller, func(t *task.Task, now time.Time) error {
		if progress < t.Progress {
			return fmt.Errorf("%w: %d is below current progress %d",
				taskgrid.ErrInvalidProgress, progress, t.Progress)
		}
		t.Progress = progress
		t.UpdatedAt = now
		return nil
	})
}

// RequeueTask resets a dead-lettered task to pending with a fresh
// attempt budget and puts it back in its type's queue.
func (s *Store) RequeueTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	t, err := s.getTaskByKey(ctx, taskKey(taskID.String()))
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusDeadLetter {
		return nil, fmt.Errorf("%w: task %s is %s", taskgrid.ErrNotDeadLettered, taskID, t.Status)
	}

	task.ApplyRequeue(t, time.Now().UTC())

	// Best-effort guard restore: an equivalent task created after the
	// dead-letter released the guard may already hold it.
	s.client.SetNX(ctx, fingerprintKey(t.Fingerprint), t.ID.String(), 0)

	if err := s.writeTask(ctx, t); err != nil {
		return nil, err
	}
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, pendingKey(t.TypeName), goredis.Z{
		Score:  taskScore(t.Priority, t.CreatedAt),
		Member: t.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("taskgrid/redis: requeue task: %w", err)
	}
	return t, nil
}

// ── helpers ──

// taskScore computes a sorted-set score from priority and created_at.
// Lower score = claimed first; priority is negated so higher priority
// sorts first, with a fractional time component for FIFO within a band.
func taskScore(priority int, createdAt time.Time) float64 {
	return float64(-priority) + float64(createdAt.UnixMilli())/1e15
}

// maxTxRetries bounds optimistic-lock retries when a watched task key
// changes under a transaction.
const maxTxRetries = 3

// withClaimedTask runs a WATCH transaction on the task's key: the task
// is re-read and ownership-checked inside the watch, fn mutates it, and
// the hash write plus queue settlement land in a single MULTI/EXEC. Any
// concurrent writer to the key aborts the EXEC and the whole check is
// retried against the fresh state.
//
// conflictErr is returned when the task is held by a different worker;
// a task that is no longer claimed at all is always a stale claim.
func (s *Store) withClaimedTask(ctx context.Context, taskID id.TaskID, workerID string, conflictErr error, fn func(t *task.Task, now time.Time) error) (*task.Task, error) {
	key := taskKey(taskID.String())

	var out *task.Task
	txn := func(tx *goredis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("taskgrid/redis: get task: %w", err)
		}
		if len(vals) == 0 {
			return taskgrid.ErrTaskNotFound
		}
		t, err := mapToTask(vals)
		if err != nil {
			return err
		}
		if t.Status != task.StatusClaimed {
			return fmt.Errorf("%w: task %s is %s", taskgrid.ErrStaleClaim, taskID, t.Status)
		}
		if t.ClaimedBy != workerID {
			return fmt.Errorf("%w: task %s is claimed by %s", conflictErr, taskID, t.ClaimedBy)
		}

		if err := fn(t, time.Now().UTC()); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, taskToMap(t))
			switch {
			case t.Status == task.StatusPending:
				pipe.ZAdd(ctx, pendingKey(t.TypeName), goredis.Z{
					Score:  taskScore(t.Priority, t.CreatedAt),
					Member: t.ID.String(),
				})
			case t.Status.Terminal():
				pipe.Del(ctx, fingerprintKey(t.Fingerprint))
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = t
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue // key changed under the watch, re-check
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("taskgrid/redis: task %s: optimistic lock retry budget exhausted", taskID)
}

// settleQueues applies the queue and guard consequences of a transition:
// back-to-pending tasks rejoin their queue, terminal tasks release the
// fingerprint guard.
func (s *Store) settleQueues(ctx context.Context, t *task.Task) error {
	pipe := s.client.TxPipeline()
	switch {
	case t.Status == task.StatusPending:
		pipe.ZAdd(ctx, pendingKey(t.TypeName), goredis.Z{
			Score:  taskScore(t.Priority, t.CreatedAt),
			Member: t.ID.String(),
		})
	case t.Status.Terminal():
		pipe.Del(ctx, fingerprintKey(t.Fingerprint))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskgrid/redis: settle queues: %w", err)
	}
	return nil
}

// writeTask persists all task fields to its Hash.
func (s *Store) writeTask(ctx context.Context, t *task.Task) error {
	if _, err := s.client.HSet(ctx, taskKey(t.ID.String()), taskToMap(t)).Result(); err != nil {
		return fmt.Errorf("taskgrid/redis: write task: %w", err)
	}
	return nil
}

func (s *Store) getTaskByKey(ctx context.Context, key string) (*task.Task, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("taskgrid/redis: get task: %w", err)
	}
	if len(vals) == 0 {
		return nil, taskgrid.ErrTaskNotFound
	}
	return mapToTask(vals)
}

func taskToMap(t *task.Task) map[string]interface{} {
	m := map[string]interface{}{
		"id":            t.ID.String(),
		"type_name":     t.TypeName,
		"params":        string(t.Params),
		"fingerprint":   t.Fingerprint,
		"status":        string(t.Status),
		"priority":      strconv.Itoa(t.Priority),
		"attempts":      strconv.Itoa(t.Attempts),
		"max_attempts":  strconv.Itoa(t.MaxAttempts),
		"progress":      strconv.Itoa(t.Progress),
		"result":        string(t.Result),
		"error_message": t.ErrorMessage,
		"claimed_by":    t.ClaimedBy,
		"created_at":    t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    t.UpdatedAt.Format(time.RFC3339Nano),
	}
	m["claimed_at"] = formatOptTime(t.ClaimedAt)
	m["lease_expires_at"] = formatOptTime(t.LeaseExpiresAt)
	m["completed_at"] = formatOptTime(t.CompletedAt)
	return m
}

func mapToTask(m map[string]string) (*task.Task, error) {
	tID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("taskgrid/redis: parse task id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])        //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data
	progress, _ := strconv.Atoi(m["progress"])        //nolint:errcheck // best-effort parse from trusted Redis data

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	t := &task.Task{
		Entity: taskgrid.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           tID,
		TypeName:     m["type_name"],
		Params:       []byte(m["params"]),
		Fingerprint:  m["fingerprint"],
		Status:       task.Status(m["status"]),
		Priority:     priority,
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		Progress:     progress,
		ErrorMessage: m["error_message"],
		ClaimedBy:    m["claimed_by"],
	}
	if v := m["result"]; v != "" {
		t.Result = json.RawMessage(v)
	}
	t.ClaimedAt = parseOptTime(m["claimed_at"])
	t.LeaseExpiresAt = parseOptTime(m["lease_expires_at"])
	t.CompletedAt = parseOptTime(m["completed_at"])

	return t, nil
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseOptTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}

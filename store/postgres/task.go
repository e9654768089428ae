package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

const taskColumns = `id, type_name, params, fingerprint, status, priority,
	attempts, max_attempts, progress, result, error_message, claimed_by,
	claimed_at, lease_expires_at, completed_at, created_at, updated_at`

// CreateTask inserts a task unless a non-terminal task with the same
// fingerprint exists. The partial unique index on (fingerprint) over
// pending/claimed rows is the arbiter: the insert and the dedup check
// are one atomic statement, so two concurrent creates can never both
// insert.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) (*task.Task, bool, error) {
	insert := `
		INSERT INTO taskgrid_tasks (
			id, type_name, params, fingerprint, status, priority,
			attempts, max_attempts, progress, result, error_message, claimed_by,
			claimed_at, lease_expires_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17
		)
		ON CONFLICT (fingerprint) WHERE status IN ('pending', 'claimed') DO NOTHING
		RETURNING ` + taskColumns

	// A conflicting in-flight task can reach a terminal state between
	// the failed insert and the coalesce lookup; retry the insert when
	// the lookup comes back empty.
	for attempt := 0; attempt < 3; attempt++ {
		row := s.pool.QueryRow(ctx, insert,
			t.ID.String(), t.TypeName, t.Params, t.Fingerprint, string(t.Status), t.Priority,
			t.Attempts, t.MaxAttempts, t.Progress, t.Result, t.ErrorMessage, t.ClaimedBy,
			t.ClaimedAt, t.LeaseExpiresAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt,
		)
		created, err := scanTask(row)
		if err == nil {
			return created, false, nil
		}
		if !isNoRows(err) {
			return nil, false, fmt.Errorf("taskgrid/postgres: create task: %w", err)
		}

		row = s.pool.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM taskgrid_tasks
			 WHERE fingerprint = $1 AND status IN ('pending', 'claimed')`,
			t.Fingerprint,
		)
		existing, err := scanTask(row)
		if err == nil {
			return existing, true, nil
		}
		if !isNoRows(err) {
			return nil, false, fmt.Errorf("taskgrid/postgres: coalesce task: %w", err)
		}
	}
	return nil, false, fmt.Errorf("taskgrid/postgres: create task %s: dedup retry budget exhausted", t.ID)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM taskgrid_tasks WHERE id = $1`,
		taskID.String(),
	)
	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, taskgrid.ErrTaskNotFound
		}
		return nil, fmt.Errorf("taskgrid/postgres: get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the given options, oldest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM taskgrid_tasks WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.TypeName != "" {
		query += fmt.Sprintf(" AND type_name = $%d", argIdx)
		args = append(args, opts.TypeName)
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("taskgrid/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM taskgrid_tasks WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.TypeName != "" {
		query += fmt.Sprintf(" AND type_name = $%d", argIdx)
		args = append(args, opts.TypeName)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("taskgrid/postgres: count tasks: %w", err)
	}
	return count, nil
}

// ClaimTask atomically claims the next eligible pending task of the
// given type: highest priority first, oldest first within a band. SKIP
// LOCKED keeps concurrent claimers from ever selecting the same row.
func (s *Store) ClaimTask(ctx context.Context, typeName, workerID string, lease time.Duration) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE taskgrid_tasks
		SET status = 'claimed',
		    claimed_by = $2,
		    claimed_at = NOW(),
		    lease_expires_at = NOW() + make_interval(secs => $3),
		    attempts = attempts + 1,
		    progress = 0,
		    updated_at = NOW()
		WHERE id = (
			SELECT id FROM taskgrid_tasks
			WHERE status = 'pending' AND type_name = $1
			ORDER BY priority DESC, created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+taskColumns,
		typeName, workerID, lease.Seconds(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, taskgrid.ErrNoneAvailable
		}
		return nil, fmt.Errorf("taskgrid/postgres: claim task: %w", err)
	}
	return t, nil
}

// SweepExpired reclaims every claimed task whose lease has passed,
// applying the same transition as an explicit failure report: pending
// while attempts remain, dead_letter once the budget is spent.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE taskgrid_tasks
		SET status = CASE WHEN attempts >= max_attempts THEN 'dead_letter' ELSE 'pending' END,
		    error_message = 'claim lease expired',
		    claimed_by = '',
		    claimed_at = NULL,
		    lease_expires_at = NULL,
		    progress = 0,
		    completed_at = CASE WHEN attempts >= max_attempts THEN $1::timestamptz ELSE NULL END,
		    updated_at = $1
		WHERE status = 'claimed' AND lease_expires_at < $1
		RETURNING `+taskColumns,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("taskgrid/postgres: sweep expired: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CompleteTask finishes a claimed task on behalf of workerID inside a
// transaction, with the row locked across the ownership check and the
// transition.
func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID, workerID string, success bool, result json.RawMessage, errorMessage string) (*task.Task, error) {
	var completed *task.Task
	err := s.withClaimedTask(ctx, taskID, workerID, taskgrid.ErrStaleClaim, func(t *task.Task, now time.Time) error {
		if success {
			task.ApplySuccess(t, result, now)
		} else {
			task.ApplyFailure(t, errorMessage, now)
		}
		completed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// UpdateTaskProgress records a progress value for a claimed task with
// the same ownership guards as CompleteTask. Progress must not regress
// while held by the same claimant.
func (s *Store) UpdateTaskProgress(ctx context.Context, taskID id.TaskID, workerID string, progress int) (*task.Task, error) {
	var updated *task.Task
	err := s.withClaimedTask(ctx, taskID, workerID, taskgrid.ErrNotClaimedByCaller, func(t *task.Task, now time.Time) error {
		if progress < t.Progress {
			return fmt.Errorf("%w: %d is below current progress %d",
				taskgrid.ErrInvalidProgress, progress, t.Progress)
		}
		t.Progress = progress
		t.UpdatedAt = now
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RequeueTask resets a dead-lettered task to pending with a fresh
// attempt budget.
func (s *Store) RequeueTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("taskgrid/postgres: begin requeue: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	t, err := lockTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusDeadLetter {
		return nil, fmt.Errorf("%w: task %s is %s", taskgrid.ErrNotDeadLettered, taskID, t.Status)
	}

	task.ApplyRequeue(t, time.Now().UTC())
	if err := updateTask(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("taskgrid/postgres: commit requeue: %w", err)
	}
	return t, nil
}

// withClaimedTask runs fn against a row-locked task after verifying it
// is claimed by workerID, then persists the mutated task and commits.
// conflictErr is returned when the task is held by a different worker;
// a task that is no longer claimed at all is always a stale claim.
func (s *Store) withClaimedTask(ctx context.Context, taskID id.TaskID, workerID string, conflictErr error, fn func(t *task.Task, now time.Time) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("taskgrid/postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	t, err := lockTask(ctx, tx, taskID)
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
	if err := updateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("taskgrid/postgres: commit: %w", err)
	}
	return nil
}

// lockTask selects a task FOR UPDATE within tx.
func lockTask(ctx context.Context, tx pgx.Tx, taskID id.TaskID) (*task.Task, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM taskgrid_tasks WHERE id = $1 FOR UPDATE`,
		taskID.String(),
	)
	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, taskgrid.ErrTaskNotFound
		}
		return nil, fmt.Errorf("taskgrid/postgres: lock task: %w", err)
	}
	return t, nil
}

// updateTask persists all mutable task fields within tx.
func updateTask(ctx context.Context, tx pgx.Tx, t *task.Task) error {
	tag, err := tx.Exec(ctx, `
		UPDATE taskgrid_tasks SET
			status = $2, priority = $3, attempts = $4, progress = $5,
			result = $6, error_message = $7, claimed_by = $8,
			claimed_at = $9, lease_expires_at = $10, completed_at = $11,
			updated_at = $12
		WHERE id = $1`,
		t.ID.String(), string(t.Status), t.Priority, t.Attempts, t.Progress,
		t.Result, t.ErrorMessage, t.ClaimedBy,
		t.ClaimedAt, t.LeaseExpiresAt, t.CompletedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskgrid/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskgrid.ErrTaskNotFound
	}
	return nil
}

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		idStr     string
		statusStr string
	)
	err := row.Scan(
		&idStr, &t.TypeName, &t.Params, &t.Fingerprint, &statusStr, &t.Priority,
		&t.Attempts, &t.MaxAttempts, &t.Progress, &t.Result, &t.ErrorMessage, &t.ClaimedBy,
		&t.ClaimedAt, &t.LeaseExpiresAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(statusStr)

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("taskgrid/postgres: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("taskgrid/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskgrid/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}

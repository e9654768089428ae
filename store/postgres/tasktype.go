package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/tasktype"
)

const taskTypeColumns = `id, name, version, param_schema, active, created_at, updated_at`

// PutTaskType inserts or updates a task type keyed by name. On
// re-registration the stored ID and created_at survive; version, schema
// and the active flag are replaced.
func (s *Store) PutTaskType(ctx context.Context, t *tasktype.TaskType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO taskgrid_task_types (
			id, name, version, param_schema, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			version = EXCLUDED.version,
			param_schema = EXCLUDED.param_schema,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		t.ID.String(), t.Name, t.Version, t.ParamSchema, t.Active,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskgrid/postgres: put task type: %w", err)
	}
	return nil
}

// GetTaskType retrieves a task type by ID.
func (s *Store) GetTaskType(ctx context.Context, typeID id.TaskTypeID) (*tasktype.TaskType, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskTypeColumns+` FROM taskgrid_task_types WHERE id = $1`,
		typeID.String(),
	)
	return scanTaskType(row)
}

// GetTaskTypeByName retrieves a task type by its unique name,
// deactivated ones included.
func (s *Store) GetTaskTypeByName(ctx context.Context, name string) (*tasktype.TaskType, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskTypeColumns+` FROM taskgrid_task_types WHERE name = $1`,
		name,
	)
	return scanTaskType(row)
}

// ListTaskTypes returns task types ordered by name.
func (s *Store) ListTaskTypes(ctx context.Context, opts tasktype.ListOpts) ([]*tasktype.TaskType, error) {
	query := `SELECT ` + taskTypeColumns + ` FROM taskgrid_task_types`
	args := []interface{}{}
	argIdx := 1

	if opts.ActiveOnly {
		query += " WHERE active"
	}
	query += " ORDER BY name ASC"

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
		return nil, fmt.Errorf("taskgrid/postgres: list task types: %w", err)
	}
	defer rows.Close()

	var types []*tasktype.TaskType
	for rows.Next() {
		t, scanErr := scanTaskType(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskgrid/postgres: iterate task type rows: %w", err)
	}
	return types, nil
}

// DeactivateTaskType clears the active flag on the named type.
func (s *Store) DeactivateTaskType(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE taskgrid_task_types SET active = FALSE, updated_at = NOW() WHERE name = $1`,
		name,
	)
	if err != nil {
		return fmt.Errorf("taskgrid/postgres: deactivate task type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskgrid.ErrTaskTypeNotFound
	}
	return nil
}

// scanTaskType scans a single task type row.
func scanTaskType(row pgx.Row) (*tasktype.TaskType, error) {
	var (
		t     tasktype.TaskType
		idStr string
	)
	err := row.Scan(
		&idStr, &t.Name, &t.Version, &t.ParamSchema, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, taskgrid.ErrTaskTypeNotFound
		}
		return nil, fmt.Errorf("taskgrid/postgres: scan task type: %w", err)
	}

	parsedID, parseErr := id.ParseTaskTypeID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("taskgrid/postgres: parse task type id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	return &t, nil
}

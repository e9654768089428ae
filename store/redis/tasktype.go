package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/tasktype"
)

// PutTaskType stores the type as a Hash keyed by name. Re-registration
// keeps the original ID and created_at of the stored type.
func (s *Store) PutTaskType(ctx context.Context, t *tasktype.TaskType) error {
	key := typeKey(t.Name)

	stored := *t
	existing, err := s.getTypeByKey(ctx, key)
	if err == nil {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, taskgrid.ErrTaskTypeNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, typeToMap(&stored))
	pipe.SAdd(ctx, typeNamesKey, stored.Name)
	pipe.HSet(ctx, typeByIDKey, stored.ID.String(), stored.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskgrid/redis: put task type: %w", err)
	}
	return nil
}

// GetTaskType retrieves a task type by ID.
func (s *Store) GetTaskType(ctx context.Context, typeID id.TaskTypeID) (*tasktype.TaskType, error) {
	name, err := s.client.HGet(ctx, typeByIDKey, typeID.String()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, taskgrid.ErrTaskTypeNotFound
		}
		return nil, fmt.Errorf("taskgrid/redis: get task type by id: %w", err)
	}
	return s.getTypeByKey(ctx, typeKey(name))
}

// GetTaskTypeByName retrieves a task type by its unique name,
// deactivated ones included.
func (s *Store) GetTaskTypeByName(ctx context.Context, name string) (*tasktype.TaskType, error) {
	return s.getTypeByKey(ctx, typeKey(name))
}

// ListTaskTypes returns task types ordered by name.
func (s *Store) ListTaskTypes(ctx context.Context, opts tasktype.ListOpts) ([]*tasktype.TaskType, error) {
	names, err := s.client.SMembers(ctx, typeNamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("taskgrid/redis: list task types smembers: %w", err)
	}
	sort.Strings(names)

	types := make([]*tasktype.TaskType, 0, len(names))
	for _, name := range names {
		t, getErr := s.getTypeByKey(ctx, typeKey(name))
		if getErr != nil {
			continue // skip missing
		}
		if opts.ActiveOnly && !t.Active {
			continue
		}
		types = append(types, t)
	}

	// Apply offset/limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(types) {
			return nil, nil
		}
		types = types[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(types) {
		types = types[:opts.Limit]
	}
	return types, nil
}

// DeactivateTaskType clears the active flag on the named type.
func (s *Store) DeactivateTaskType(ctx context.Context, name string) error {
	key := typeKey(name)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("taskgrid/redis: deactivate exists: %w", err)
	}
	if exists == 0 {
		return taskgrid.ErrTaskTypeNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key, "active", "false", "updated_at", now).Result()
	if err != nil {
		return fmt.Errorf("taskgrid/redis: deactivate task type: %w", err)
	}
	return nil
}

// ── helpers ──

func (s *Store) getTypeByKey(ctx context.Context, key string) (*tasktype.TaskType, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("taskgrid/redis: get task type: %w", err)
	}
	if len(vals) == 0 {
		return nil, taskgrid.ErrTaskTypeNotFound
	}
	return mapToType(vals)
}

func typeToMap(t *tasktype.TaskType) map[string]interface{} {
	return map[string]interface{}{
		"id":           t.ID.String(),
		"name":         t.Name,
		"version":      t.Version,
		"param_schema": string(t.ParamSchema),
		"active":       strconv.FormatBool(t.Active),
		"created_at":   t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   t.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToType(m map[string]string) (*tasktype.TaskType, error) {
	typeID, err := id.ParseTaskTypeID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("taskgrid/redis: parse task type id: %w", err)
	}

	active, _ := strconv.ParseBool(m["active"])                   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &tasktype.TaskType{
		Entity: taskgrid.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          typeID,
		Name:        m["name"],
		Version:     m["version"],
		ParamSchema: []byte(m["param_schema"]),
		Active:      active,
	}, nil
}

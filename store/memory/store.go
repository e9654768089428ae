// Package memory provides a fully in-memory store.Store implementation.
// Safe for concurrent access. Intended for unit testing, development,
// and single-process embedding.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle risk in tests), so we verify
// each subsystem.
var (
	_ tasktype.Store = (*Store)(nil)
	_ task.Store     = (*Store)(nil)
)

// Store is a mutex-protected in-memory implementation of store.Store.
// The single mutex is what makes the claim and create operations
// atomic: every read-modify-write runs under it.
type Store struct {
	mu sync.Mutex

	types map[string]*tasktype.TaskType // keyed by name
	tasks map[string]*task.Task         // keyed by ID string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		types: make(map[string]*tasktype.TaskType),
		tasks: make(map[string]*task.Task),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// TaskType store
// ──────────────────────────────────────────────────

// PutTaskType inserts or replaces a task type keyed by name,
// preserving the original ID and CreatedAt on re-registration.
func (m *Store) PutTaskType(_ context.Context, t *tasktype.TaskType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	if existing, ok := m.types[t.Name]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = time.Now().UTC()
	m.types[t.Name] = &cp
	return nil
}

// GetTaskType retrieves a task type by ID.
func (m *Store) GetTaskType(_ context.Context, typeID id.TaskTypeID) (*tasktype.TaskType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.types {
		if t.ID.String() == typeID.String() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, taskgrid.ErrTaskTypeNotFound
}

// GetTaskTypeByName retrieves a task type by its unique name.
// Deactivated types are returned on explicit lookup.
func (m *Store) GetTaskTypeByName(_ context.Context, name string) (*tasktype.TaskType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.types[name]
	if !ok {
		return nil, taskgrid.ErrTaskTypeNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTaskTypes returns task types matching the given options, ordered
// by name.
func (m *Store) ListTaskTypes(_ context.Context, opts tasktype.ListOpts) ([]*tasktype.TaskType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*tasktype.TaskType, 0, len(m.types))
	for _, t := range m.types {
		if opts.ActiveOnly && !t.Active {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Name < result[k].Name
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// DeactivateTaskType clears the active flag on the named type.
func (m *Store) DeactivateTaskType(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.types[name]
	if !ok {
		return taskgrid.ErrTaskTypeNotFound
	}
	t.Active = false
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Task store
// ──────────────────────────────────────────────────

// CreateTask inserts a task unless a non-terminal task with the same
// fingerprint exists. The lookup and insert share the store mutex, so
// two concurrent creates can never both insert.
func (m *Store) CreateTask(_ context.Context, t *task.Task) (*task.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Fingerprint != "" {
		for _, existing := range m.tasks {
			if existing.Fingerprint == t.Fingerprint && !existing.Status.Terminal() {
				cp := *existing
				return &cp, true, nil
			}
		}
	}

	cp := *t
	m.tasks[t.ID.String()] = &cp
	out := cp
	return &out, false, nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, taskgrid.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTasks returns tasks matching the given options, oldest first.
func (m *Store) ListTasks(_ context.Context, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.TypeName != "" && t.TypeName != opts.TypeName {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].ID.String() < result[k].ID.String()
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// CountTasks returns the number of tasks matching the given options.
func (m *Store) CountTasks(_ context.Context, opts task.CountOpts) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, t := range m.tasks {
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.TypeName != "" && t.TypeName != opts.TypeName {
			continue
		}
		n++
	}
	return n, nil
}

// ClaimTask atomically selects one pending task of the given type —
// highest priority first, oldest first within a band — and claims it
// for workerID. The selection and transition run under one mutex hold,
// so concurrent claims never receive the same task.
func (m *Store) ClaimTask(_ context.Context, typeName, workerID string, lease time.Duration) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *task.Task
	for _, t := range m.tasks {
		if t.Status != task.StatusPending || t.TypeName != typeName {
			continue
		}
		if best == nil || claimBefore(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, taskgrid.ErrNoneAvailable
	}

	task.ApplyClaim(best, workerID, lease, time.Now().UTC())
	cp := *best
	return &cp, nil
}

// claimBefore reports whether a should be claimed ahead of b:
// priority DESC, then CreatedAt ASC, then ID ASC for determinism.
func claimBefore(a, b *task.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// SweepExpired reclaims every claimed task whose lease has passed,
// routing each through the shared failure transition.
func (m *Store) SweepExpired(_ context.Context, now time.Time) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reclaimed []*task.Task
	for _, t := range m.tasks {
		if !t.LeaseExpired(now) {
			continue
		}
		task.ApplyFailure(t, "claim lease expired", now)
		cp := *t
		reclaimed = append(reclaimed, &cp)
	}
	return reclaimed, nil
}

// CompleteTask finishes a claimed task on behalf of workerID, with the
// store-side ownership guards.
func (m *Store) CompleteTask(_ context.Context, taskID id.TaskID, workerID string, success bool, result json.RawMessage, errorMessage string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.claimedByLocked(taskID, workerID, taskgrid.ErrStaleClaim)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if success {
		task.ApplySuccess(t, result, now)
	} else {
		task.ApplyFailure(t, errorMessage, now)
	}
	cp := *t
	return &cp, nil
}

// UpdateTaskProgress records progress for a claimed task, rejecting
// regressions while the same claimant holds the task.
func (m *Store) UpdateTaskProgress(_ context.Context, taskID id.TaskID, workerID string, progress int) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.claimedByLocked(taskID, workerID, taskgrid.ErrNotClaimedByCaller)
	if err != nil {
		return nil, err
	}
	if progress < t.Progress {
		return nil, taskgrid.ErrInvalidProgress
	}

	t.Progress = progress
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

// RequeueTask resets a dead-lettered task to pending with a fresh
// attempt budget.
func (m *Store) RequeueTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, taskgrid.ErrTaskNotFound
	}
	if t.Status != task.StatusDeadLetter {
		return nil, taskgrid.ErrNotDeadLettered
	}

	task.ApplyRequeue(t, time.Now().UTC())
	cp := *t
	return &cp, nil
}

// claimedByLocked looks up a task and applies the ownership guards.
// A task that is no longer claimed is always a stale claim; when it is
// claimed by a different worker the caller chooses the error, since
// completion treats any lost claim as stale while progress reports the
// mismatched holder.
func (m *Store) claimedByLocked(taskID id.TaskID, workerID string, conflictErr error) (*task.Task, error) {
	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, taskgrid.ErrTaskNotFound
	}
	if t.Status != task.StatusClaimed {
		return nil, taskgrid.ErrStaleClaim
	}
	if t.ClaimedBy != workerID {
		return nil, conflictErr
	}
	return t, nil
}

// paginate applies offset/limit to an already-sorted slice.
func paginate[T any](in []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

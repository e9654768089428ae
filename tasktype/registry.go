package tasktype

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/schema"
)

// Registry provides schema-checked task type registration over a Store.
// It keeps a compiled-schema cache keyed by (name, version) so parameter
// validation does not recompile on every task creation. Safe for
// concurrent use.
type Registry struct {
	store            Store
	maxPatternLength int
	logger           *slog.Logger

	mu       sync.RWMutex
	compiled map[string]compiledEntry
}

type compiledEntry struct {
	version string
	schema  *schema.Schema
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxPatternLength caps the length of pattern expressions accepted
// in registered schemas.
func WithMaxPatternLength(n int) RegistryOption {
	return func(r *Registry) { r.maxPatternLength = n }
}

// WithRegistryLogger sets the structured logger for the registry.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a task type registry over the given store.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:            store,
		maxPatternLength: schema.DefaultMaxPatternLength,
		logger:           slog.Default(),
		compiled:         make(map[string]compiledEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates rawSchema against the schema meta-rules and
// upserts the type. Registering an existing name is an update: the new
// version and schema are recorded and the type is reactivated, but the
// original ID and CreatedAt are preserved. Tasks validated under a
// previous version are not re-validated retroactively.
func (r *Registry) Register(ctx context.Context, name, version string, rawSchema []byte) (*TaskType, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: type name must not be empty", taskgrid.ErrInvalidSchema)
	}
	if strings.TrimSpace(version) == "" {
		return nil, fmt.Errorf("%w: type version must not be empty", taskgrid.ErrInvalidSchema)
	}

	compiled, err := schema.CompileWithLimit(rawSchema, r.maxPatternLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", taskgrid.ErrInvalidSchema, err)
	}

	t := &TaskType{
		Entity:      taskgrid.NewEntity(),
		ID:          id.NewTaskTypeID(),
		Name:        name,
		Version:     version,
		ParamSchema: normalizeRaw(rawSchema),
		Active:      true,
	}
	if err := r.store.PutTaskType(ctx, t); err != nil {
		return nil, fmt.Errorf("register task type %q: %w", name, err)
	}

	// Re-read so callers observe the ID/CreatedAt the store preserved
	// on re-registration.
	stored, err := r.store.GetTaskTypeByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("register task type %q: %w", name, err)
	}

	r.mu.Lock()
	r.compiled[name] = compiledEntry{version: version, schema: compiled}
	r.mu.Unlock()

	r.logger.Info("task type registered",
		slog.String("name", name),
		slog.String("version", version),
	)
	return stored, nil
}

// Get returns the task type with the given name. Deactivated types are
// returned on explicit lookup; only task creation rejects them.
func (r *Registry) Get(ctx context.Context, name string) (*TaskType, error) {
	return r.store.GetTaskTypeByName(ctx, name)
}

// List returns registered task types, optionally restricted to active ones.
func (r *Registry) List(ctx context.Context, activeOnly bool) ([]*TaskType, error) {
	return r.store.ListTaskTypes(ctx, ListOpts{ActiveOnly: activeOnly})
}

// Deactivate removes the named type from task creation. The type
// remains readable and existing tasks are unaffected.
func (r *Registry) Deactivate(ctx context.Context, name string) error {
	if err := r.store.DeactivateTaskType(ctx, name); err != nil {
		return err
	}
	r.logger.Info("task type deactivated", slog.String("name", name))
	return nil
}

// Schema returns the compiled parameter schema for the named type,
// compiling and caching it if this process has not seen the stored
// version yet.
func (r *Registry) Schema(ctx context.Context, name string) (*schema.Schema, error) {
	t, err := r.store.GetTaskTypeByName(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, ok := r.compiled[name]
	r.mu.RUnlock()
	if ok && entry.version == t.Version {
		return entry.schema, nil
	}

	compiled, err := schema.CompileWithLimit(t.ParamSchema, r.maxPatternLength)
	if err != nil {
		// A stored schema that no longer compiles means the store was
		// written by something that bypassed registration.
		return nil, fmt.Errorf("%w: stored schema for %q: %w", taskgrid.ErrInvalidSchema, name, err)
	}

	r.mu.Lock()
	r.compiled[name] = compiledEntry{version: t.Version, schema: compiled}
	r.mu.Unlock()
	return compiled, nil
}

// normalizeRaw keeps nil and empty schemas as an explicit empty object
// so stores never persist a zero-length JSON value.
func normalizeRaw(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

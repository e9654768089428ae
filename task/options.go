package task

// Options capture per-task creation parameters.
type Options struct {
	// Priority orders claim handout: higher values are claimed first.
	Priority int
	// MaxAttempts is the attempt budget. Zero means use the
	// coordinator default.
	MaxAttempts int
}

// Option configures task creation.
type Option func(*Options)

// DefaultOptions returns the zero-value creation options.
func DefaultOptions() Options { return Options{} }

// WithPriority sets the claim priority. Higher is claimed first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithMaxAttempts sets the attempt budget for the task.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

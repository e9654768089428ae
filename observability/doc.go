// Package observability provides an OpenTelemetry-based metrics
// extension for TaskGrid. The MetricsExtension implements lifecycle
// hooks to record system-wide counters for task creation, claims,
// completions, retries, dead-letter entries, lease reclamations, and
// replays.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

// Package schema implements the parameter-schema dialect used by task
// types: a restricted, data-only subset of JSON Schema.
//
// Supported keywords: type, required, properties (recursive), items,
// enum, minimum, maximum, pattern, and default. Nothing in a schema is
// ever executed; a schema is plain data validated against meta-rules at
// [Compile] time, so malformed schemas are rejected at registration and
// never reach validation.
//
// Validation collects every violation instead of failing fast; the full
// list is returned to the caller as [FieldError] values with dotted
// paths. Pattern matching runs on Go's RE2 engine, which is
// linear-time by construction — a hostile pattern cannot trigger
// catastrophic backtracking — and pattern length is capped at compile
// time as an additional resource bound.
package schema

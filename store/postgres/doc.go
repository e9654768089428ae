// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED claim, a partial unique index for in-flight
// fingerprint deduplication, embedded SQL migrations.
package postgres

// Package postgres implements storage.Store on a Postgres connection pool
// via database/sql and lib/pq. Every call is bounded by the configured query
// timeout; batch inserts use a savepoint per row so one bad event costs only
// its own row.
package postgres

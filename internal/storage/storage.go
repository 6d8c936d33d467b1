package storage

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned by SetFlagEnabled when no flag row matches
// (tenant, key).
var ErrFlagNotFound = errors.New("storage: flag not found")

// Store is the narrow query interface the core depends on. Implementations
// must be safe for concurrent use and are expected to bound each call with
// their own timeout; callers apply no per-message deadline of their own.
type Store interface {
	// InsertEventsBatch persists events in the given order and returns how
	// many rows were persisted. A nil error with a count below len(events)
	// means individual rows failed; a zero count with a non-nil error means
	// the batch as a whole did not reach storage.
	InsertEventsBatch(ctx context.Context, events []Event) (int, error)

	// UpsertIdentify associates a known user id with an anonymous id for a
	// tenant. (tenant, anonID) is unique; last write wins on user id and
	// traits.
	UpsertIdentify(ctx context.Context, tenant, anonID, userID, traits string) error

	// UpsertSession records a session at connection open.
	UpsertSession(ctx context.Context, tenant, sessionID, anonID string) error

	// TouchSession bumps last-activity and the event count for a session.
	TouchSession(ctx context.Context, sessionID string) error

	// SetSessionUser links a known user id to a session.
	SetSessionUser(ctx context.Context, sessionID, userID string) error

	// FlagsGroupedByTenant loads every flag, grouped by tenant, ordered by
	// key within each tenant.
	FlagsGroupedByTenant(ctx context.Context) (map[string][]Flag, error)

	// SetFlagEnabled persists a new enabled value and returns the updated
	// flag. Returns ErrFlagNotFound when (tenant, key) does not exist.
	SetFlagEnabled(ctx context.Context, tenant, key string, enabled bool) (Flag, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

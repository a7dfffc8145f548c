package ehr

import (
	"context"
	"time"
)

// ConnectionRepository persists at most one Connection per user.
type ConnectionRepository interface {
	// Get returns the user's connection, or (nil, nil) when none exists.
	Get(ctx context.Context, userID string) (*Connection, error)

	// Upsert inserts the connection or replaces the existing row for the
	// same user.
	Upsert(ctx context.Context, conn *Connection) error

	// Delete removes the user's connection. Deleting a missing connection
	// is not an error.
	Delete(ctx context.Context, userID string) error
}

// PendingAuthStore holds in-flight authorization sessions keyed by state
// token. Implementations may expire entries on their own (Redis TTL) or rely
// on periodic DeleteOlderThan sweeps (Postgres).
type PendingAuthStore interface {
	Create(ctx context.Context, pa *PendingAuthorization) error

	// Get returns the session for a state token, or (nil, nil) when the
	// token is unknown or already expired.
	Get(ctx context.Context, state string) (*PendingAuthorization, error)

	// Delete removes a consumed session. Missing sessions are not an error.
	Delete(ctx context.Context, state string) error

	// DeleteOlderThan removes sessions created before cutoff and reports how
	// many were removed. TTL-backed stores may treat this as a no-op.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

package metrics

import "context"

// Repository persists metrics for reads ordered newest first.
type Repository interface {
	Insert(ctx context.Context, m *Metric) error

	// List returns the user's metrics newest first, optionally filtered by
	// kind, capped at limit.
	List(ctx context.Context, userID, kind string, limit int) ([]Metric, error)

	// LatestPerKind returns the most recent metric of each kind the user
	// has recorded.
	LatestPerKind(ctx context.Context, userID string) ([]Metric, error)
}

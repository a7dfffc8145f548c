package insights

import "context"

type Repository interface {
	Insert(ctx context.Context, in *Insight) error

	// List returns the user's insights newest first, capped at limit.
	List(ctx context.Context, userID string, limit int) ([]Insight, error)
}

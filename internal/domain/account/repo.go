package account

import "context"

type Repository interface {
	// Get returns the user row, or (nil, nil) when the user has never been
	// seen before.
	Get(ctx context.Context, userID string) (*User, error)

	// Upsert inserts the user or updates the mutable profile fields.
	Upsert(ctx context.Context, u *User) error
}

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Get(ctx context.Context, userID string) (*User, error) {
	const q = `
		SELECT id, email, name, timezone, created_at, updated_at
		FROM users
		WHERE id = $1`

	var u User
	err := r.pool.QueryRow(ctx, q, userID).Scan(&u.ID, &u.Email, &u.Name, &u.Timezone, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *repoPG) Upsert(ctx context.Context, u *User) error {
	const q = `
		INSERT INTO users (id, email, name, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			email      = EXCLUDED.email,
			name       = EXCLUDED.name,
			timezone   = EXCLUDED.timezone,
			updated_at = now()`

	if _, err := r.pool.Exec(ctx, q, u.ID, u.Email, u.Name, u.Timezone); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

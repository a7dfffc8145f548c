package insights

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Insert(ctx context.Context, in *Insight) error {
	const q = `
		INSERT INTO insights (id, user_id, summary, source, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.pool.Exec(ctx, q, in.ID, in.UserID, in.Summary, in.Source, in.CreatedAt); err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, userID string, limit int) ([]Insight, error) {
	const q = `
		SELECT id, user_id, summary, source, created_at
		FROM insights
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	out := make([]Insight, 0)
	for rows.Next() {
		var in Insight
		if err := rows.Scan(&in.ID, &in.UserID, &in.Summary, &in.Source, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

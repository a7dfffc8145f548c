package metrics

import (
	"context"
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

func (r *repoPG) Insert(ctx context.Context, m *Metric) error {
	const q = `
		INSERT INTO health_metrics (id, user_id, kind, value, unit, recorded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, q, m.ID, m.UserID, m.Kind, m.Value, m.Unit, m.RecordedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, userID, kind string, limit int) ([]Metric, error) {
	q := `
		SELECT id, user_id, kind, value, unit, recorded_at, created_at
		FROM health_metrics
		WHERE user_id = $1`
	args := []interface{}{userID}
	if kind != "" {
		q += ` AND kind = $2`
		args = append(args, kind)
	}
	q += fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()
	return scanMetrics(rows)
}

func (r *repoPG) LatestPerKind(ctx context.Context, userID string) ([]Metric, error) {
	const q = `
		SELECT DISTINCT ON (kind)
		       id, user_id, kind, value, unit, recorded_at, created_at
		FROM health_metrics
		WHERE user_id = $1
		ORDER BY kind, recorded_at DESC`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("latest metrics: %w", err)
	}
	defer rows.Close()
	return scanMetrics(rows)
}

func scanMetrics(rows pgx.Rows) ([]Metric, error) {
	out := make([]Metric, 0)
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &m.Value, &m.Unit, &m.RecordedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

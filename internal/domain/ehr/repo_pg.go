package ehr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type connectionRepoPG struct {
	pool *pgxpool.Pool
}

// NewConnectionRepoPG returns a Postgres-backed ConnectionRepository. The
// ehr_connections table carries a unique constraint on user_id, which is
// what makes Upsert a true replace.
func NewConnectionRepoPG(pool *pgxpool.Pool) ConnectionRepository {
	return &connectionRepoPG{pool: pool}
}

func (r *connectionRepoPG) Get(ctx context.Context, userID string) (*Connection, error) {
	const q = `
		SELECT user_id, access_token, refresh_token, token_type, scope,
		       expires_at, patient_id, fhir_base_url, created_at, updated_at
		FROM ehr_connections
		WHERE user_id = $1`

	var c Connection
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenType, &c.Scope,
		&c.ExpiresAt, &c.PatientID, &c.FHIRBaseURL, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ehr connection: %w", err)
	}
	return &c, nil
}

func (r *connectionRepoPG) Upsert(ctx context.Context, conn *Connection) error {
	const q = `
		INSERT INTO ehr_connections
			(user_id, access_token, refresh_token, token_type, scope,
			 expires_at, patient_id, fhir_base_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type    = EXCLUDED.token_type,
			scope         = EXCLUDED.scope,
			expires_at    = EXCLUDED.expires_at,
			patient_id    = EXCLUDED.patient_id,
			fhir_base_url = EXCLUDED.fhir_base_url,
			updated_at    = now()`

	_, err := r.pool.Exec(ctx, q,
		conn.UserID, conn.AccessToken, conn.RefreshToken, conn.TokenType,
		conn.Scope, conn.ExpiresAt, conn.PatientID, conn.FHIRBaseURL,
	)
	if err != nil {
		return fmt.Errorf("upsert ehr connection: %w", err)
	}
	return nil
}

func (r *connectionRepoPG) Delete(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM ehr_connections WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete ehr connection: %w", err)
	}
	return nil
}

type pendingAuthStorePG struct {
	pool *pgxpool.Pool
}

// NewPendingAuthStorePG returns a Postgres-backed PendingAuthStore. Entries
// survive restarts, so a sweeper must run DeleteOlderThan periodically.
func NewPendingAuthStorePG(pool *pgxpool.Pool) PendingAuthStore {
	return &pendingAuthStorePG{pool: pool}
}

func (s *pendingAuthStorePG) Create(ctx context.Context, pa *PendingAuthorization) error {
	const q = `
		INSERT INTO ehr_auth_sessions (state, user_id, code_verifier, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, pa.State, pa.UserID, pa.CodeVerifier, pa.CreatedAt); err != nil {
		return fmt.Errorf("create auth session: %w", err)
	}
	return nil
}

func (s *pendingAuthStorePG) Get(ctx context.Context, state string) (*PendingAuthorization, error) {
	const q = `
		SELECT state, user_id, code_verifier, created_at
		FROM ehr_auth_sessions
		WHERE state = $1`

	var pa PendingAuthorization
	err := s.pool.QueryRow(ctx, q, state).Scan(&pa.State, &pa.UserID, &pa.CodeVerifier, &pa.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	return &pa, nil
}

func (s *pendingAuthStorePG) Delete(ctx context.Context, state string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ehr_auth_sessions WHERE state = $1`, state); err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}

func (s *pendingAuthStorePG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ehr_auth_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep auth sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

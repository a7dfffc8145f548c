package ehr

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/thriveai/companion/internal/platform/events"
)

const (
	// refreshMargin is how close to expiry a token may get before a request
	// triggers a refresh. Clock skew between us and the vendor makes using
	// tokens to the last second unsafe.
	refreshMargin = 60 * time.Second

	// PendingAuthRetention is how long an unconsumed authorization session
	// stays redeemable. Long enough for a user to log in at the vendor and
	// approve scopes, short enough that leaked state tokens go stale fast.
	PendingAuthRetention = 10 * time.Minute
)

// TokenProvider is the OAuth surface the service needs from a vendor client.
type TokenProvider interface {
	Configured() bool
	AuthorizeURL(state, codeChallenge string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	ComputeExpiry(expiresIn int64) time.Time
	DefaultFHIRBaseURL() string
}

// VitalsFetcher is the FHIR read surface the service needs.
type VitalsFetcher interface {
	ResolvePatientID(ctx context.Context, accessToken, fhirBaseURL string) string
	FetchVitals(ctx context.Context, accessToken, fhirBaseURL, patientID string) ([]VitalRecord, error)
}

// EventPublisher receives connection lifecycle events. Delivery is
// fire-and-forget and must never block or fail the calling request.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Service owns the EHR connection lifecycle: starting authorizations,
// redeeming callbacks, keeping tokens fresh and reading vitals.
type Service struct {
	conns    ConnectionRepository
	pending  PendingAuthStore
	provider TokenProvider
	vitals   VitalsFetcher
	pub      EventPublisher
	logger   zerolog.Logger
	now      func() time.Time

	// refreshes coalesces concurrent refresh attempts per user so the
	// vendor sees at most one grant redemption at a time. Epic invalidates
	// a refresh token family on concurrent use.
	refreshes singleflight.Group
}

func NewService(
	conns ConnectionRepository,
	pending PendingAuthStore,
	provider TokenProvider,
	vitals VitalsFetcher,
	pub EventPublisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		conns:    conns,
		pending:  pending,
		provider: provider,
		vitals:   vitals,
		pub:      pub,
		logger:   logger.With().Str("component", "ehr").Logger(),
		now:      time.Now,
	}
}

// AuthorizationStart is handed back to the client that initiates a flow. The
// state doubles as the session handle; the verifier never leaves the server.
type AuthorizationStart struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// BeginAuthorization mints a PKCE pair and state token, stores the pending
// session and returns the vendor redirect URL.
func (s *Service) BeginAuthorization(ctx context.Context, userID string) (*AuthorizationStart, error) {
	if !s.provider.Configured() {
		return nil, ErrNotConfigured
	}

	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}
	state, err := GenerateStateToken()
	if err != nil {
		return nil, err
	}

	pa := &PendingAuthorization{
		State:        state,
		UserID:       userID,
		CodeVerifier: verifier,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.pending.Create(ctx, pa); err != nil {
		return nil, fmt.Errorf("store auth session: %w", err)
	}

	return &AuthorizationStart{
		URL:   s.provider.AuthorizeURL(state, DeriveCodeChallenge(verifier)),
		State: state,
	}, nil
}

// CompleteAuthorization redeems the vendor callback. The session is consumed
// only after the resulting connection has been committed, so a crash between
// exchange and commit leaves the user able to retry the whole flow.
func (s *Service) CompleteAuthorization(ctx context.Context, code, state, providerError string) error {
	if providerError != "" {
		return &AuthorizationDeniedError{Reason: providerError}
	}
	if code == "" || state == "" {
		return ErrInvalidCallback
	}

	pa, err := s.pending.Get(ctx, state)
	if err != nil {
		return fmt.Errorf("load auth session: %w", err)
	}
	if pa == nil {
		return ErrSessionExpired
	}

	tok, err := s.provider.Exchange(ctx, code, pa.CodeVerifier)
	if err != nil {
		// Authorization codes are single-use, so the session cannot be
		// redeemed again either way.
		if delErr := s.pending.Delete(ctx, state); delErr != nil {
			s.logger.Warn().Err(delErr).Msg("failed to discard auth session after exchange failure")
		}
		return err
	}

	conn, err := s.applyTokenResponse(ctx, pa.UserID, tok)
	if err != nil {
		return err
	}

	if delErr := s.pending.Delete(ctx, state); delErr != nil {
		s.logger.Warn().Err(delErr).Msg("failed to delete consumed auth session")
	}

	if s.pub != nil {
		s.pub.Publish(events.New("ehr.connected", pa.UserID, map[string]string{
			"patient_id": conn.PatientID,
		}))
	}
	s.logger.Info().Str("user_id", pa.UserID).Msg("ehr connection established")
	return nil
}

// applyTokenResponse merges a token endpoint payload into the user's
// connection and commits it. Fields the vendor omitted keep their previous
// values; in particular a refresh response without a refresh_token must not
// erase the stored one.
func (s *Service) applyTokenResponse(ctx context.Context, userID string, tok *TokenResponse) (*Connection, error) {
	conn, err := s.conns.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		conn = &Connection{UserID: userID, CreatedAt: s.now().UTC()}
	}

	conn.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		conn.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		conn.TokenType = tok.TokenType
	}
	if tok.Scope != "" {
		conn.Scope = tok.Scope
	}
	if tok.Patient != "" {
		conn.PatientID = tok.Patient
	}
	conn.ExpiresAt = s.provider.ComputeExpiry(tok.ExpiresIn)
	conn.FHIRBaseURL = s.provider.DefaultFHIRBaseURL()
	conn.UpdatedAt = s.now().UTC()

	if err := s.conns.Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("store connection: %w", err)
	}
	return conn, nil
}

// ConnectionStatus reports whether the user is connected and the non-secret
// facts about the connection.
func (s *Service) ConnectionStatus(ctx context.Context, userID string) (*ConnectionStatus, error) {
	conn, err := s.conns.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return &ConnectionStatus{Connected: false}, nil
	}
	expires := conn.ExpiresAt
	return &ConnectionStatus{
		Connected:   true,
		PatientID:   conn.PatientID,
		FHIRBaseURL: conn.FHIRBaseURL,
		ExpiresAt:   &expires,
	}, nil
}

// Disconnect removes the user's connection. Disconnecting twice is fine.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.conns.Delete(ctx, userID); err != nil {
		return err
	}
	if s.pub != nil {
		s.pub.Publish(events.New("ehr.disconnected", userID, nil))
	}
	return nil
}

// Vitals returns the user's most recent vital-sign observations, refreshing
// the access token and resolving the patient id on the way if needed.
func (s *Service) Vitals(ctx context.Context, userID string) ([]VitalRecord, error) {
	conn, err := s.conns.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return nil, ErrNotConnected
	}

	conn = s.ensureFreshToken(ctx, conn)

	fhirBase := conn.FHIRBaseURL
	if fhirBase == "" {
		fhirBase = s.provider.DefaultFHIRBaseURL()
	}
	if fhirBase == "" {
		return nil, ErrNotConfigured
	}

	patientID := conn.PatientID
	if patientID == "" {
		patientID = s.vitals.ResolvePatientID(ctx, conn.AccessToken, fhirBase)
		if patientID != "" {
			conn.PatientID = patientID
			conn.UpdatedAt = s.now().UTC()
			if err := s.conns.Upsert(ctx, conn); err != nil {
				s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist resolved patient id")
			}
		}
	}
	if patientID == "" {
		return nil, ErrPatientNotFound
	}

	return s.vitals.FetchVitals(ctx, conn.AccessToken, fhirBase, patientID)
}

// ensureFreshToken refreshes the connection's access token when it is within
// the refresh margin of expiry. Concurrent callers for the same user share a
// single refresh. Refresh failures are logged and the stale connection is
// returned; the vendor will reject the next FHIR call loudly if the token is
// truly dead, and the user keeps the option to reconnect.
func (s *Service) ensureFreshToken(ctx context.Context, conn *Connection) *Connection {
	if s.tokenFresh(conn) || conn.RefreshToken == "" {
		return conn
	}

	v, err, _ := s.refreshes.Do(conn.UserID, func() (interface{}, error) {
		// Re-read inside the flight: a coalesced caller may arrive after a
		// previous flight already rotated the token.
		current, err := s.conns.Get(ctx, conn.UserID)
		if err != nil || current == nil {
			current = conn
		}
		if s.tokenFresh(current) {
			return current, nil
		}

		tok, err := s.provider.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		return s.applyTokenResponse(ctx, current.UserID, tok)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", conn.UserID).Msg("token refresh failed")
		return conn
	}
	return v.(*Connection)
}

func (s *Service) tokenFresh(conn *Connection) bool {
	return conn.ExpiresAt.After(s.now().Add(refreshMargin))
}

// StartPendingSweeper deletes stale authorization sessions on an interval
// until ctx is cancelled. Stores that expire natively report zero deletions.
func (s *Service) StartPendingSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := s.now().UTC().Add(-PendingAuthRetention)
				n, err := s.pending.DeleteOlderThan(ctx, cutoff)
				if err != nil {
					s.logger.Warn().Err(err).Msg("auth session sweep failed")
					continue
				}
				if n > 0 {
					s.logger.Debug().Int64("deleted", n).Msg("swept stale auth sessions")
				}
			}
		}
	}()
}

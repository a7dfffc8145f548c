package account

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service keeps profile rows in step with upstream identities.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "account").Logger(),
		now:    time.Now,
	}
}

// Profile returns the user's profile, creating the row on first sight from
// the token's claims.
func (s *Service) Profile(ctx context.Context, userID, email, name string) (*User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	now := s.now().UTC()
	u = &User{ID: userID, Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("profile created on first sight")
	return u, nil
}

// Update applies the editable fields and returns the stored profile. Fields
// the client omits are left untouched.
func (s *Service) Update(ctx context.Context, userID, email, name string, in UpdateInput) (*User, error) {
	u, err := s.Profile(ctx, userID, email, name)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Timezone != nil {
		u.Timezone = *in.Timezone
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

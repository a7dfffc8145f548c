package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thriveai/companion/internal/domain/metrics"
	"github.com/thriveai/companion/internal/platform/events"
)

const defaultListLimit = 20

// MetricsSource supplies the readings a summary is built from.
type MetricsSource interface {
	Latest(ctx context.Context, userID string) ([]metrics.Metric, error)
}

// EventPublisher mirrors the events dispatcher surface the service uses.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Service generates and stores insight summaries. The model generator is
// optional; when it is absent or fails, the rules generator answers instead
// so the endpoint never depends on an external model being up.
type Service struct {
	repo     Repository
	source   MetricsSource
	model    Generator
	fallback Generator
	pub      EventPublisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, source MetricsSource, model Generator, pub EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		source:   source,
		model:    model,
		fallback: NewRulesGenerator(),
		pub:      pub,
		logger:   logger.With().Str("component", "insights").Logger(),
		now:      time.Now,
	}
}

// Generate builds a fresh insight from the user's latest readings and
// persists it.
func (s *Service) Generate(ctx context.Context, userID string) (*Insight, error) {
	readings, err := s.source.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}

	summary, source := s.summarize(ctx, readings)

	in := &Insight{
		ID:        uuid.NewString(),
		UserID:    userID,
		Summary:   summary,
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, in); err != nil {
		return nil, fmt.Errorf("store insight: %w", err)
	}

	if s.pub != nil {
		s.pub.Publish(events.New("insight.generated", userID, map[string]string{"source": source}))
	}
	return in, nil
}

func (s *Service) summarize(ctx context.Context, readings []metrics.Metric) (string, string) {
	if s.model != nil {
		summary, err := s.model.Summarize(ctx, readings)
		if err == nil && summary != "" {
			return summary, SourceModel
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("model summary failed, using fallback")
		}
	}
	summary, _ := s.fallback.Summarize(ctx, readings)
	return summary, SourceRules
}

// List returns the user's stored insights newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Insight, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.repo.List(ctx, userID, limit)
}

package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thriveai/companion/internal/platform/events"
	ws "github.com/thriveai/companion/internal/platform/websocket"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500

	// StreamSnapshotSize is how many recent metrics a new stream subscriber
	// receives before live updates begin.
	StreamSnapshotSize = 20
)

// ErrInvalidMetric rejects a record request with a missing kind.
var ErrInvalidMetric = errors.New("metric kind is required")

// EventPublisher mirrors the events dispatcher surface the service uses.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Service records measurements and feeds them to live stream subscribers.
type Service struct {
	repo   Repository
	hub    *ws.Hub
	pub    EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, hub *ws.Hub, pub EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    hub,
		pub:    pub,
		logger: logger.With().Str("component", "metrics").Logger(),
		now:    time.Now,
	}
}

// Record stores a measurement, pushes it to the user's live streams and
// emits a metric.recorded event.
func (s *Service) Record(ctx context.Context, userID string, in RecordInput) (*Metric, error) {
	if in.Kind == "" {
		return nil, ErrInvalidMetric
	}

	now := s.now().UTC()
	recordedAt := now
	if in.RecordedAt != nil {
		recordedAt = in.RecordedAt.UTC()
	}

	m := &Metric{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       in.Kind,
		Value:      in.Value,
		Unit:       in.Unit,
		RecordedAt: recordedAt,
		CreatedAt:  now,
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("record metric: %w", err)
	}

	if s.hub != nil {
		s.hub.Publish(userID, m)
	}
	if s.pub != nil {
		s.pub.Publish(events.New("metric.recorded", userID, map[string]string{
			"kind":  m.Kind,
			"value": strconv.FormatFloat(m.Value, 'f', -1, 64),
		}))
	}
	return m, nil
}

// List returns the user's metrics newest first.
func (s *Service) List(ctx context.Context, userID, kind string, limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.List(ctx, userID, kind, limit)
}

// Latest returns the most recent reading of each kind.
func (s *Service) Latest(ctx context.Context, userID string) ([]Metric, error) {
	return s.repo.LatestPerKind(ctx, userID)
}

// Snapshot returns the backlog a new stream subscriber should see.
func (s *Service) Snapshot(ctx context.Context, userID string) ([]Metric, error) {
	return s.repo.List(ctx, userID, "", StreamSnapshotSize)
}

// Package events provides asynchronous, fire-and-forget event publication to
// one or more backends. Delivery is best effort: a sink failure is logged and
// never propagates to the request that produced the event.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a domain occurrence worth telling other systems about.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// New builds an event stamped with a fresh id and the current time.
func New(eventType, userID string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Attributes: attrs,
	}
}

// Sink delivers events to one backend.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Dispatcher fans events out to every registered sink on background
// goroutines. Publish returns immediately; callers must not gate domain
// writes on delivery.
type Dispatcher struct {
	sinks   []Sink
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(logger zerolog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Publish hands the event to every sink asynchronously.
func (d *Dispatcher) Publish(ev Event) {
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := s.Publish(ctx, ev); err != nil {
				d.logger.Warn().Err(err).
					Str("event_id", ev.ID).
					Str("event_type", ev.Type).
					Msg("event sink delivery failed")
			}
		}(sink)
	}
}

// Close waits for in-flight deliveries and closes all sinks.
func (d *Dispatcher) Close() {
	d.wg.Wait()
	for _, sink := range d.sinks {
		if err := sink.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("event sink close failed")
		}
	}
}

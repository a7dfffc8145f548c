package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (s *recordingSink) Publish(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcher_FansOutToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	d := NewDispatcher(zerolog.Nop(), a, b)

	d.Publish(New("ehr.connected", "user-1", map[string]string{"patient_id": "p1"}))
	d.Close()

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("expected every sink to receive the event, got %d and %d", a.count(), b.count())
	}
	if !a.closed || !b.closed {
		t.Error("expected sinks to be closed")
	}
}

func TestDispatcher_SinkFailureIsIsolated(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	healthy := &recordingSink{}
	d := NewDispatcher(zerolog.Nop(), failing, healthy)

	d.Publish(New("ehr.disconnected", "user-1", nil))
	d.Close()

	if healthy.count() != 1 {
		t.Errorf("healthy sink should still deliver, got %d events", healthy.count())
	}
}

func TestNew_StampsIdentityAndTime(t *testing.T) {
	ev := New("ehr.connected", "user-9", nil)
	if ev.ID == "" {
		t.Error("expected generated event id")
	}
	if ev.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be stamped")
	}
	if ev.Type != "ehr.connected" || ev.UserID != "user-9" {
		t.Errorf("identity fields: got %+v", ev)
	}
}

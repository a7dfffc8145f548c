// Package websocket fans live updates out to connected clients. Each
// subscription is scoped to one user; a user may hold several connections
// (phone and laptop) and all of them receive every update.
package websocket

import (
	"sync"

	"github.com/rs/zerolog"
)

// Conn is the slice of a websocket connection the hub writes to. The
// gorilla *websocket.Conn satisfies it; tests use fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub tracks live subscriptions per user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "ws-hub").Logger(),
	}
}

// Subscription is one live connection's membership in the hub. Close both
// unregisters and closes the underlying connection.
type Subscription struct {
	hub    *Hub
	userID string
	conn   Conn
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.conn.Close()
	})
}

// Subscribe registers a connection for a user's updates.
func (h *Hub) Subscribe(userID string, conn Conn) *Subscription {
	sub := &Subscription{hub: h, userID: userID, conn: conn}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.userID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.userID)
	}
}

// Publish sends the payload to every connection the user holds. A failed
// write evicts that connection; the rest are unaffected.
func (h *Hub) Publish(userID string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[userID]))
	for sub := range h.subs[userID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.conn.WriteJSON(payload); err != nil {
			h.logger.Debug().Err(err).Str("user_id", userID).Msg("evicting dead subscriber")
			sub.Close()
		}
	}
}

// Subscribers reports how many live connections a user holds.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Shutdown closes every connection in the hub.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	all := make([]*Subscription, 0)
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
}

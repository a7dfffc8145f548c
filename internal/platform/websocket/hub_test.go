package websocket

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads []interface{}
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.payloads = append(c.payloads, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestHub_PublishReachesAllUserConnections(t *testing.T) {
	h := NewHub(zerolog.Nop())
	phone := &fakeConn{}
	laptop := &fakeConn{}
	other := &fakeConn{}

	h.Subscribe("user-1", phone)
	h.Subscribe("user-1", laptop)
	h.Subscribe("user-2", other)

	h.Publish("user-1", map[string]string{"kind": "heart_rate"})

	if phone.count() != 1 || laptop.count() != 1 {
		t.Errorf("user-1 connections: got %d and %d writes", phone.count(), laptop.count())
	}
	if other.count() != 0 {
		t.Error("update leaked to another user's connection")
	}
}

func TestHub_FailedWriteEvictsConnection(t *testing.T) {
	h := NewHub(zerolog.Nop())
	dead := &fakeConn{writeErr: errors.New("broken pipe")}
	alive := &fakeConn{}

	h.Subscribe("user-1", dead)
	h.Subscribe("user-1", alive)

	h.Publish("user-1", "ping")

	if !dead.closed {
		t.Error("dead connection should be closed")
	}
	if h.Subscribers("user-1") != 1 {
		t.Errorf("subscribers: got %d", h.Subscribers("user-1"))
	}

	h.Publish("user-1", "ping")
	if alive.count() != 2 {
		t.Errorf("surviving connection writes: got %d", alive.count())
	}
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := &fakeConn{}
	sub := h.Subscribe("user-1", conn)

	sub.Close()
	sub.Close()

	if h.Subscribers("user-1") != 0 {
		t.Error("subscription still registered after close")
	}
}

func TestHub_Shutdown(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := &fakeConn{}
	b := &fakeConn{}
	h.Subscribe("user-1", a)
	h.Subscribe("user-2", b)

	h.Shutdown()

	if !a.closed || !b.closed {
		t.Error("expected all connections closed")
	}
	if h.Subscribers("user-1") != 0 || h.Subscribers("user-2") != 0 {
		t.Error("subscriptions remain after shutdown")
	}
}

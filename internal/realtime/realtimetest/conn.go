// Package realtimetest provides an in-memory realtime.Conn for tests.
package realtimetest

import (
	"context"
	"errors"
	"sync"

	"social/infrastructure"
	"social/internal/realtime"
)

var ErrClosed = errors.New("connection closed")

// Conn records every event it accepts.
type Conn struct {
	mu          sync.Mutex
	events      []realtime.Event
	closed      bool
	closeReason string
	// Reject makes Send fail as a full transport would.
	Reject bool
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) Send(event realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.Reject {
		return errors.New("outbox full")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *Conn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeReason = reason
	}
}

func (c *Conn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

// Events returns a copy of the recorded events.
func (c *Conn) Events() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Event(nil), c.events...)
}

// Named returns the recorded events with the given wire type.
func (c *Conn) Named(name string) []realtime.Event {
	var out []realtime.Event
	for _, ev := range c.Events() {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

// Verifier maps tokens to user ids; unknown tokens are rejected.
type Verifier map[string]string

func (v Verifier) Verify(_ context.Context, credential string) (string, error) {
	userID, ok := v[credential]
	if !ok {
		return "", infrastructure.ErrInvalidToken
	}
	return userID, nil
}

// Package realtime holds per-connection sessions and the hub that fans
// events out to them.
package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"social/infrastructure"
)

// Event is an outbound event. EventName is the wire "type" of the frame; the
// value itself is encoded as the payload.
type Event interface {
	EventName() string
}

// Conn is the transport side of a session. Send must not block: a transport
// that cannot accept the event returns an error and the event is lost.
type Conn interface {
	Send(event Event) error
	Close(reason string)
}

// CredentialVerifier resolves a raw credential to a user id.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

var errAlreadyAuthenticated = errors.New("session already authenticated")

// PersonalRoom is the room every connection of userID joins on connect.
func PersonalRoom(userID string) string {
	return "user:" + userID
}

type Session struct {
	id   string
	conn Conn

	mu     sync.RWMutex
	userID string
	rooms  map[string]struct{}

	disconnected atomic.Bool
}

func NewSession(conn Conn) *Session {
	return &Session{
		id:    uuid.NewString(),
		conn:  conn,
		rooms: make(map[string]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Authenticated() bool {
	return s.UserID() != ""
}

// Bind sets the user id. It can only succeed once.
func (s *Session) Bind(userID string) error {
	if userID == "" {
		return infrastructure.ErrInvalidToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" {
		return errAlreadyAuthenticated
	}
	s.userID = userID
	return nil
}

// Join adds the session to room and reports whether it was not joined before.
func (s *Session) Join(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; ok {
		return false
	}
	s.rooms[room] = struct{}{}
	return true
}

// Leave removes the session from room and reports whether it was joined.
func (s *Session) Leave(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; !ok {
		return false
	}
	delete(s.rooms, room)
	return true
}

func (s *Session) InRoom(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// Rooms returns the joined rooms in sorted order.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// Send hands event to the transport.
func (s *Session) Send(event Event) error {
	return s.conn.Send(event)
}

func (s *Session) Close(reason string) {
	s.conn.Close(reason)
}

// MarkDisconnected reports true on the first call only.
func (s *Session) MarkDisconnected() bool {
	return s.disconnected.CompareAndSwap(false, true)
}

// Authenticate verifies credential and returns a session bound to the
// resulting user. On failure the connection is closed and no session exists.
func Authenticate(ctx context.Context, verifier CredentialVerifier, conn Conn, credential string) (*Session, error) {
	if credential == "" {
		conn.Close(infrastructure.ErrMissingToken.Error())
		return nil, infrastructure.ErrMissingToken
	}
	userID, err := verifier.Verify(ctx, credential)
	if err != nil {
		conn.Close(infrastructure.ErrUnauthorized.Error())
		return nil, err
	}
	session := NewSession(conn)
	if err := session.Bind(userID); err != nil {
		conn.Close(infrastructure.ErrUnauthorized.Error())
		return nil, err
	}
	return session, nil
}

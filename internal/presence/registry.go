// Package presence tracks which users hold at least one live connection.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	mirrorQueueSize = 256
	mirrorTimeout   = 2 * time.Second
)

// Mirror receives online/offline transitions, for example to publish them to
// a shared cache. It is never consulted for reads.
type Mirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

type transition struct {
	userID string
	online bool
}

// Registry maps a user id to the set of its live connection ids.
// A user is online iff it has an entry; empty entries are removed.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
	conns int

	mirror    Mirror
	queue     chan transition
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. mirror may be nil.
func NewRegistry(mirror Mirror) *Registry {
	r := &Registry{
		users:  make(map[string]map[string]struct{}),
		mirror: mirror,
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "presence"),
	}
	if mirror != nil {
		r.queue = make(chan transition, mirrorQueueSize)
		r.wg.Add(1)
		go r.runMirror()
	}
	return r
}

// Register adds connID to userID's set. It reports true only when the user
// had no connections before the call.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
		// Enqueued under the lock so the mirror sees edges in registry order.
		r.publish(transition{userID: userID, online: true})
	}
	if _, dup := conns[connID]; !dup {
		conns[connID] = struct{}{}
		r.conns++
	}
	return !ok
}

// Unregister removes connID from userID's set. It reports true only when the
// removal emptied the set. Unknown pairs are a no-op.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, found := conns[connID]; !found {
		return false
	}
	delete(conns, connID)
	r.conns--
	if len(conns) > 0 {
		return false
	}
	delete(r.users, userID)
	r.publish(transition{userID: userID, online: false})
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineSubset returns the ids from userIDs that are online, in input order.
func (r *Registry) OnlineSubset(userIDs []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	online := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := r.users[id]; ok {
			online = append(online, id)
		}
	}
	return online
}

// OnlineUsers returns a snapshot of all online user ids in no particular order.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns
}

// Close stops the mirror worker and clears all entries. Transitions still
// queued for the mirror are discarded.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.mu.Lock()
		r.users = make(map[string]map[string]struct{})
		r.conns = 0
		r.mu.Unlock()
	})
}

// publish never blocks. Callers hold r.mu.
func (r *Registry) publish(t transition) {
	if r.queue == nil {
		return
	}
	select {
	case <-r.done:
	case r.queue <- t:
	default:
		r.logger.Warn("presence mirror queue full, dropping transition", "user_id", t.userID, "online", t.online)
	}
}

// runMirror applies transitions in the order they happened.
func (r *Registry) runMirror() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case t := <-r.queue:
			ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			var err error
			if t.online {
				err = r.mirror.SetOnline(ctx, t.userID)
			} else {
				err = r.mirror.SetOffline(ctx, t.userID)
			}
			cancel()
			if err != nil {
				r.logger.Warn("presence mirror update failed", "user_id", t.userID, "online", t.online, "error", err)
			}
		}
	}
}

// KeepAlive re-publishes every online user to the mirror on each tick so
// TTL-based mirrors do not expire long-lived users. It returns when ctx ends.
func KeepAlive(ctx context.Context, r *Registry, mirror Mirror, every time.Duration) {
	if mirror == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range r.OnlineUsers() {
				if err := mirror.SetOnline(ctx, id); err != nil {
					r.logger.Warn("presence keepalive failed", "user_id", id, "error", err)
				}
			}
		}
	}
}

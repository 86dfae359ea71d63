package cache

import (
	"context"
	"time"
)

// KeyValue is the subset of RedisCache the presence mirror needs.
type KeyValue interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PresenceMirror publishes online users as expiring keys
// presence:<namespace>:<userID>. Readers outside this process may treat a
// present key as "online somewhere"; the in-process registry stays
// authoritative.
type PresenceMirror struct {
	kv        KeyValue
	namespace string
	ttl       time.Duration
}

func NewPresenceMirror(kv KeyValue, namespace string, ttl time.Duration) *PresenceMirror {
	return &PresenceMirror{kv: kv, namespace: namespace, ttl: ttl}
}

func (m *PresenceMirror) Key(userID string) string {
	return "presence:" + m.namespace + ":" + userID
}

func (m *PresenceMirror) SetOnline(ctx context.Context, userID string) error {
	return m.kv.Set(ctx, m.Key(userID), time.Now().UTC().Format(time.RFC3339), m.ttl)
}

func (m *PresenceMirror) SetOffline(ctx context.Context, userID string) error {
	return m.kv.Delete(ctx, m.Key(userID))
}

// KeepAliveInterval refreshes keys well before they expire.
func (m *PresenceMirror) KeepAliveInterval() time.Duration {
	return m.ttl / 3
}

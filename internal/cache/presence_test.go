package cache

import (
	"context"
	"testing"
	"time"
)

type fakeKV struct {
	values map[string]time.Duration
}

func (f *fakeKV) Set(_ context.Context, key string, _ interface{}, ttl time.Duration) error {
	f.values[key] = ttl
	return nil
}

func (f *fakeKV) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func TestPresenceMirrorKeys(t *testing.T) {
	kv := &fakeKV{values: map[string]time.Duration{}}
	m := NewPresenceMirror(kv, "chat", 90*time.Second)
	ctx := context.Background()

	if err := m.SetOnline(ctx, "u1"); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	ttl, ok := kv.values["presence:chat:u1"]
	if !ok {
		t.Fatalf("keys = %v, want presence:chat:u1", kv.values)
	}
	if ttl != 90*time.Second {
		t.Fatalf("ttl = %v, want %v", ttl, 90*time.Second)
	}
	if got := m.KeepAliveInterval(); got != 30*time.Second {
		t.Fatalf("KeepAliveInterval = %v, want %v", got, 30*time.Second)
	}

	if err := m.SetOffline(ctx, "u1"); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	if len(kv.values) != 0 {
		t.Fatalf("keys after offline = %v, want none", kv.values)
	}
}

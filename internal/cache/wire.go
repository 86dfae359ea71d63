package cache

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"social/config"
	"social/internal/presence"
)

const chatPresenceNamespace = "chat"

// ProvidePresenceMirror connects to Redis when REDIS_ADDR is set. Without it
// the mirror is nil and presence stays process-local.
func ProvidePresenceMirror(ctx context.Context, cfg *config.Config) (presence.Mirror, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Info("REDIS_ADDR not set, presence mirror disabled")
		return nil, func() {}, nil
	}
	rc, err := NewRedisCache(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := rc.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	return NewPresenceMirror(rc, chatPresenceNamespace, cfg.PresenceTTL), cleanup, nil
}

var Set = wire.NewSet(ProvidePresenceMirror)

//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"social/config"
	"social/internal/auth"
	"social/internal/cache"
	"social/internal/chat"
	"social/internal/database"
	"social/internal/metrics"
	"social/internal/notifications"
	"social/internal/user"
)

var AppSet = wire.NewSet(
	ProvideSQL,
	ProvideGorm,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
	metrics.New,
	cache.Set,
	user.Set,
	auth.Set,
	chat.Set,
	notifications.Set,
	ProvideServer,
	ProvideApp,
)

func InitializeApp(ctx context.Context, cfg *config.Config, db *database.Database, registry *prometheus.Registry) (*App, func(), error) {
	wire.Build(AppSet)
	return nil, nil, nil
}

package main

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"social/config"
	"social/internal/api"
	"social/internal/auth"
	"social/internal/chat"
	"social/internal/database"
	"social/internal/notifications"
	"social/internal/presence"
	"social/internal/user"
)

// App is everything main needs after dependency injection.
type App struct {
	Server        *api.Server
	ChatGateway   *chat.Gateway
	NotifyGateway *notifications.Gateway
	Mirror        presence.Mirror
}

func ProvideSQL(db *database.Database) *sql.DB {
	return db.SQL
}

func ProvideGorm(db *database.Database) *gorm.DB {
	return db.DB
}

func ProvideServer(
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	authHandler *auth.JSONHandler,
	middleware *auth.Middleware,
	chatHandler *chat.JSONHandler,
	chatService *chat.Service,
	chatGateway *chat.Gateway,
	notifyHandler *notifications.JSONHandler,
	notifyGateway *notifications.Gateway,
	userHandler *user.JSONHandler,
) *api.Server {
	return api.NewServer(api.Handlers{
		Auth:          authHandler,
		Middleware:    middleware,
		Chat:          chatHandler,
		Notifications: notifyHandler,
		Users:         userHandler,
		ChatService:   chatService,
		ChatGateway:   chatGateway,
		NotifyGateway: notifyGateway,
		Gatherer:      gatherer,
	}, cfg.RateLimitRPS, cfg.WSOriginPatterns)
}

func ProvideApp(server *api.Server, chatGateway *chat.Gateway, notifyGateway *notifications.Gateway, mirror presence.Mirror) *App {
	return &App{
		Server:        server,
		ChatGateway:   chatGateway,
		NotifyGateway: notifyGateway,
		Mirror:        mirror,
	}
}

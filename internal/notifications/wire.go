package notifications

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"social/config"
	"social/internal/metrics"
	"social/internal/presence"
	"social/internal/realtime"
	"social/internal/user"
)

// ProvideRepository is a Wire provider function that creates a GormRepository
func ProvideRepository(db *gorm.DB) Repository {
	return NewGormRepository(db)
}

// ProvideGateway is a Wire provider function that creates the notification
// Gateway with its own presence registry and hub.
func ProvideGateway(repo Repository, verifier realtime.CredentialVerifier, m *metrics.Metrics) *Gateway {
	return NewGateway(repo, verifier, presence.NewRegistry(nil), realtime.NewHub(Namespace, m), m)
}

func ProvideService(repo Repository, users user.Repository, gateway *Gateway) *Service {
	return NewService(repo, users, gateway)
}

func ProvideJSONHandler(service *Service, cfg *config.Config) *JSONHandler {
	return NewJSONHandler(service, cfg.InternalToken)
}

var Set = wire.NewSet(ProvideRepository, ProvideGateway, ProvideService, ProvideJSONHandler)

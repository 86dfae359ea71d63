package chat

import (
	"database/sql"

	"github.com/google/wire"

	"social/internal/metrics"
	"social/internal/presence"
	"social/internal/realtime"
)

// ProvideRepository is a Wire provider function that creates a PostgresRepository
func ProvideRepository(db *sql.DB) Repository {
	return NewPostgresRepository(db)
}

// ProvideGateway is a Wire provider function that creates the chat Gateway
// with its own presence registry and hub.
func ProvideGateway(repo Repository, verifier realtime.CredentialVerifier, mirror presence.Mirror, m *metrics.Metrics) *Gateway {
	return NewGateway(repo, verifier, presence.NewRegistry(mirror), realtime.NewHub(Namespace, m), m)
}

// ProvideService is a Wire provider function that creates a Service
func ProvideService(repo Repository, gateway *Gateway) *Service {
	return NewService(repo, gateway)
}

func ProvideJSONHandler(service *Service) *JSONHandler {
	return NewJSONHandler(service)
}

var Set = wire.NewSet(ProvideRepository, ProvideGateway, ProvideService, ProvideJSONHandler)

package auth

import (
	"github.com/google/wire"

	"social/config"
	"social/internal/realtime"
	"social/internal/user"
	"social/pkg/jwt"
)

// ProvideJWT is a Wire provider function that creates the token signer
func ProvideJWT(cfg *config.Config) *jwt.JWT {
	return jwt.NewJWT(cfg.JWTSecret, cfg.JWTTTL)
}

// ProvideVerifier is a Wire provider function that creates a Verifier
func ProvideVerifier(j *jwt.JWT) *Verifier {
	return NewVerifier(j)
}

// ProvideService is a Wire provider function that creates a Service
func ProvideService(users user.Repository, j *jwt.JWT) *Service {
	return NewService(users, j)
}

func ProvideMiddleware(verifier *Verifier) *Middleware {
	return NewMiddleware(verifier)
}

func ProvideJSONHandler(service *Service) *JSONHandler {
	return NewJSONHandler(service)
}

var Set = wire.NewSet(
	ProvideJWT,
	ProvideVerifier,
	wire.Bind(new(realtime.CredentialVerifier), new(*Verifier)),
	ProvideService,
	ProvideMiddleware,
	ProvideJSONHandler,
)

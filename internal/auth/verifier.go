package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"social/infrastructure"
	"social/pkg/jwt"
)

// TokenQueryParam carries the credential during a WebSocket handshake, where
// browsers cannot set headers.
const TokenQueryParam = "token"

// Verifier turns a bearer token into a user id.
type Verifier struct {
	jwt *jwt.JWT
}

func NewVerifier(j *jwt.JWT) *Verifier {
	return &Verifier{jwt: j}
}

func (v *Verifier) Verify(_ context.Context, credential string) (string, error) {
	credential = stripBearer(credential)
	if credential == "" {
		return "", infrastructure.ErrMissingToken
	}
	claims, err := v.jwt.ValidateToken(credential)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", infrastructure.ErrTokenExpired
		}
		return "", infrastructure.ErrInvalidToken
	}
	return claims.Subject, nil
}

// CredentialFromRequest returns the handshake credential: the token query
// parameter first, then the Authorization header with an optional Bearer
// prefix. It returns "" when neither is present.
func CredentialFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)); token != "" {
		return token
	}
	return stripBearer(r.Header.Get("Authorization"))
}

func stripBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 7 && strings.EqualFold(v[:7], "Bearer ") {
		v = strings.TrimSpace(v[7:])
	}
	return v
}

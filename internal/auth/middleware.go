package auth

import (
	"net/http"
	"strings"

	"social/infrastructure"
)

type Middleware struct {
	verifier *Verifier
}

func NewMiddleware(verifier *Verifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// RequireUser rejects requests without a valid bearer token and stores the
// user id in the request context.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.TrimSpace(header) == "" {
			infrastructure.WriteError(w, infrastructure.ErrMissingToken)
			return
		}
		userID, err := m.verifier.Verify(r.Context(), header)
		if err != nil {
			infrastructure.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(infrastructure.WithUserID(r.Context(), userID)))
	})
}

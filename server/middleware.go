package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/wfunc/gametrack/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// authMiddleware validates the bearer token and stores the claims in
// the request context.
func (s *GameServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		claims, err := s.authManager.Validate(token)
		if err != nil {
			writeError(w, http.StatusForbidden, "Access Denied: Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-auth-api/internal/infrastructure/token"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// TokenVerifier validates a signed credential and returns its claims.
type TokenVerifier interface {
	Verify(tokenStr string) (*token.Claims, error)
}

// RevocationChecker answers whether a token identifier has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Auth returns middleware that validates the Bearer access token, checks it
// against the revocation ledger, and injects its claims into context.
// Refresh tokens are rejected here even when their signature is valid.
func Auth(verifier TokenVerifier, ledger RevocationChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := verifier.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if claims.Kind != token.KindAccess {
				writeJSONError(w, http.StatusUnauthorized, "access token required")
				return
			}
			revoked, err := ledger.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				writeJSONError(w, http.StatusServiceUnavailable, "revocation check unavailable")
				return
			}
			if revoked {
				writeJSONError(w, http.StatusUnauthorized, "token has been revoked")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts validated claims from the request context.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*token.Claims)
	return c, ok
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"parkgate/internal/auth"
)

type contextKey string

const operatorKey contextKey = "operator"

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// OperatorAuth validates bearer tokens on administrative endpoints and puts
// the operator's claims on the request context.
func OperatorAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := validator.Validate(strings.TrimSpace(parts[1]))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext retrieves the authenticated operator username.
func OperatorFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(operatorKey)
	if val == nil {
		return "", false
	}
	username, ok := val.(string)
	return username, ok
}

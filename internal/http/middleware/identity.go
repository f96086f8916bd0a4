package middleware

import (
	"context"
	"net/http"
	"strings"
)

type identityKey string

const principalContextKey identityKey = "principal_id"

// Verifier resolves a bearer token to a principal id. Ok is false for
// unknown or revoked tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (principalID string, ok bool)
}

// StaticVerifier maps fixed tokens to principals, for dev and tests.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(_ context.Context, token string) (string, bool) {
	principal, ok := v[token]
	return principal, ok
}

// Identity authenticates /api/ requests with a bearer token and stores
// the resolved principal in the request context. Paths outside /api/
// (health, readiness) pass through.
func Identity(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			authorization := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authorization, prefix) {
				writeUnauthorized(w, r)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
			if token == "" {
				writeUnauthorized(w, r)
				return
			}

			principal, ok := verifier.Verify(r.Context(), token)
			if !ok || principal == "" {
				writeUnauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipalID returns the authenticated caller id, or "" when the
// request was not authenticated.
func GetPrincipalID(ctx context.Context) string {
	value, _ := ctx.Value(principalContextKey).(string)
	return value
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"authentication required"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}

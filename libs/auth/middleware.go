package auth

import (
	"net/http"
	"strings"
)

// RequireProvider rejects requests without a valid bearer token and replaces any
// caller-supplied X-Provider-Id and X-Role headers with the verified claims.
func RequireProvider(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			provider := claims.Provider()
			if provider == "" {
				http.Error(w, "token is not bound to a provider", http.StatusForbidden)
				return
			}

			r.Header.Del("X-Provider-Id")
			r.Header.Del("X-Role")
			r.Header.Set("X-Provider-Id", provider)
			if claims.Role != "" {
				r.Header.Set("X-Role", claims.Role)
			}
			next.ServeHTTP(w, r)
		})
	}
}

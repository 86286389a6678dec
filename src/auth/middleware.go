package auth

import (
	"crypto/subtle"
	"net/http"

	logger "github.com/sirupsen/logrus"
)

// TokenAuth authenticates requests by the X-Api-Token header against the
// configured token table and attaches the matching principal.
func TokenAuth(tokens map[string]Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Api-Token")
			if presented == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for token, principal := range tokens {
				if subtle.ConstantTimeCompare([]byte(token), []byte(presented)) == 1 {
					p := principal
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), &p)))
					return
				}
			}

			logger.WithField("path", r.URL.Path).Warn("rejected request with unknown token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

// RequireRole gates a route on the principal's role. Admin passes everywhere.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipalFromContext(r.Context())
			if !ok || principal == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if principal.Role != role && principal.Role != RoleAdmin {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth validates the Authorization header against the shared service
// token. An empty configured token disables authentication (dev mode).
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "Invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"crypto/subtle"
	"net/http"
)

// DefaultKeyHeader carries the API key when none is configured.
const DefaultKeyHeader = "X-API-Key"

// APIKeyMiddleware enforces API key authentication on every request.
//
// If mode is not "apikey" or key is empty, all requests pass through.
// Otherwise a missing or wrong key is answered with 401.
func APIKeyMiddleware(mode, key string, next http.Handler) http.Handler {
	if mode != "apikey" || key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(DefaultKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

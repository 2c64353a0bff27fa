// Package authmw provides HTTP middleware for API key authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
)

// HeaderAPIKey carries the shared API key.
const HeaderAPIKey = "X-API-Key"

// APIKey returns middleware that requires the X-API-Key header to equal key.
// Comparison is constant-time.
func APIKey(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAPIKey)
			if got == "" {
				writeUnauthorized(w, `{"error":"missing api key"}`)
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				writeUnauthorized(w, `{"error":"invalid api key"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(body))
}

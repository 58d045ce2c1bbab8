package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireAPIKey rejects requests that do not present one of keys, via
// "Authorization: Bearer <key>" or X-API-Key. Health endpoints are exempt.
// With no keys configured every request passes.
func RequireAPIKey(keys []string) func(http.Handler) http.Handler {
	hashes := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			hashes = append(hashes, sha256.Sum256([]byte(k)))
		}
	}
	return func(next http.Handler) http.Handler {
		if len(hashes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r)
			if key == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			presented := sha256.Sum256([]byte(key))
			for _, h := range hashes {
				if subtle.ConstantTimeCompare(presented[:], h[:]) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusUnauthorized, "invalid api key")
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

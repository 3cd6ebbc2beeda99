package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/regingest/internal/config"
	"github.com/JonMunkholm/regingest/internal/logging"
)

// APIKeyHeader carries the caller's key. "Authorization: Bearer <key>" is
// accepted too, for schedulers that can only set that header.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests without a configured key. With RequireAPIKey
// off every request passes; with it on and no keys configured every request
// is rejected (config validation refuses that combination at startup).
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	keys := make([][]byte, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		keys[i] = []byte(k)
	}

	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logging.FromContext(r.Context()).With(
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
			)

			key := requestKey(r)
			if key == "" {
				log.Warn("auth: missing API key")
				denied(w, http.StatusUnauthorized, "missing API key", "AUTH001")
				return
			}
			if !matchKey([]byte(key), keys) {
				log.Warn("auth: invalid API key")
				denied(w, http.StatusForbidden, "invalid API key", "AUTH002")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(auth)
	}
	return ""
}

// matchKey compares against every key so timing does not reveal which one
// matched.
func matchKey(key []byte, keys [][]byte) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(key, k)
	}
	return match == 1
}

func denied(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/groundrag/internal/logging"
)

const apiKeyHeader = "X-API-Key"

// authMiddleware requires the configured API key on next. The key may arrive
// as X-API-Key or as an Authorization bearer token; X-API-Key is checked when
// both are present. An empty apiKey disables the check.
//
// The presented key is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := requestKey(r)
		if got != "" && subtle.ConstantTimeCompare([]byte(got), want) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		log := logging.FromContext(r.Context())
		if got == "" {
			log.Warn("auth: missing API key")
			w.Header().Set("WWW-Authenticate", `Bearer realm="groundrag"`)
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}
		log.Warn("auth: invalid API key", slog.Bool("token_present", true))
		w.Header().Set("WWW-Authenticate", `Bearer realm="groundrag" error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid API key")
	})
}

func requestKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(apiKeyHeader)); k != "" {
		return k
	}
	return bearerToken(r)
}

// bearerToken returns the token of an "Authorization: Bearer" header, or ""
// for any other scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

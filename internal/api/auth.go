package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/zjrosen/depotgate/internal/log"
)

// APIKeyPrefix namespaces generated keys so they are recognizable in
// config files and logs.
const APIKeyPrefix = "dp_"

// AuthConfig configures API key authentication.
type AuthConfig struct {
	// APIKey is the expected key. Authentication fails closed: an empty
	// key rejects every authenticated request unless AllowInsecureDev
	// is set.
	APIKey string
	// AllowInsecureDev disables authentication entirely. Dev only.
	AllowInsecureDev bool
}

// NewAuthMiddleware wraps routes with API key verification. Clients
// authenticate with Authorization: Bearer <key> or the X-API-Key
// header; comparison is constant-time. /health stays open for probes.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.AllowInsecureDev {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			var key string
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			} else if xKey := r.Header.Get("X-API-Key"); xKey != "" {
				key = xKey
			}
			if key == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeAuthError(w, http.StatusUnauthorized, "unauthorized",
					"missing authorization: use Authorization: Bearer <key> or the X-API-Key header")
				return
			}

			if cfg.APIKey == "" {
				log.Error(log.CatAPI, "api key not configured; rejecting request",
					"path", r.URL.Path, "hint", "set server.api_key or server.allow_insecure_dev")
				writeAuthError(w, http.StatusServiceUnavailable, "auth_not_configured",
					"server misconfigured: authentication not initialized")
				return
			}

			if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code}); err != nil {
		log.Error(log.CatAPI, "failed to encode JSON response", "error", err)
	}
}

// GenerateAPIKey returns a new random key carrying the dp_ prefix. The
// key is meant for server.api_key and the matching client credential.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

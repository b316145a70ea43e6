package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/predictledger/internal/crypto"
)

// AuthConfig selects the accepted credentials. With neither an API key nor
// HMAC credentials configured, authentication is disabled.
type AuthConfig struct {
	APIKey string
	HMAC   []crypto.HMACAuth
	// MaxSkew bounds the age of an HMAC timestamp.
	MaxSkew time.Duration
	// Public lists exact paths served without credentials.
	Public []string
}

// maxSignedBody bounds the body read for HMAC verification.
const maxSignedBody = 1 << 20

// Auth returns middleware that validates API requests by a Bearer token, an
// X-API-Key header, or an HMAC request signature in the X-Predictd-* headers.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 30 * time.Second
	}
	public := make(map[string]bool, len(cfg.Public))
	for _, p := range cfg.Public {
		public[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (cfg.APIKey == "" && len(cfg.HMAC) == 0) || public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if key := r.Header.Get(crypto.HeaderKey); key != "" {
				if !verifyHMAC(r, key, cfg) {
					writeUnauthorized(w, "invalid request signature")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}
			if cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.APIKey)) != 1 {
				writeUnauthorized(w, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifyHMAC checks the signature over timestamp+method+path+body and
// restores the body for the next handler.
func verifyHMAC(r *http.Request, key string, cfg AuthConfig) bool {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
		if err != nil {
			return false
		}
		body = b
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	ts := r.Header.Get(crypto.HeaderTimestamp)
	sig := r.Header.Get(crypto.HeaderSignature)
	now := time.Now()
	for i := range cfg.HMAC {
		if cfg.HMAC[i].Verify(key, ts, sig, r.Method, r.URL.Path, string(body), now, cfg.MaxSkew) {
			return true
		}
	}
	return false
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

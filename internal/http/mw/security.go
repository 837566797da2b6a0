package mw

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/stylemirror/tryon-api/internal/apikey"
	"github.com/stylemirror/tryon-api/internal/domains"
)

// devOriginMarkers identify local development origins that test keys may
// call from with credentials.
var devOriginMarkers = []string{"localhost", "127.0.0.1", "0.0.0.0"}

// WidgetCORS sets CORS headers for widget endpoints. It only decides
// header values; blocking mismatched origins is the auth middleware's
// job, so unmatched origins fall back to an uncredentialed wildcard
// rather than a hard block.
func WidgetCORS(store AccountStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+MerchantKeyHeader)
			h.Set("Access-Control-Max-Age", "86400")
			h.Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

			origin := r.Header.Get("Origin")

			if r.Method == http.MethodOptions {
				if origin != "" {
					h.Set("Access-Control-Allow-Origin", origin)
				} else {
					h.Set("Access-Control-Allow-Origin", "*")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			key := r.Header.Get(MerchantKeyHeader)
			switch {
			case key == "" || origin == "":
				h.Set("Access-Control-Allow-Origin", "*")
			case apikey.IsTestKey(key) && isDevOrigin(origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			case apikey.IsLiveKey(key) && originAllowed(r.Context(), store, key, origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			default:
				h.Set("Access-Control-Allow-Origin", "*")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isDevOrigin(origin string) bool {
	for _, marker := range devOriginMarkers {
		if strings.Contains(origin, marker) {
			return true
		}
	}
	return false
}

func originAllowed(ctx context.Context, store AccountStore, key, origin string) bool {
	if store == nil {
		return false
	}
	account, err := store.GetByAPIKey(ctx, key)
	if err != nil || account == nil {
		return false
	}
	domain := domains.ExtractDomain(origin)
	return domains.IsAllowed(domain, account.AllowedDomains, false)
}

// SecurityHeadersConfig controls header emission.
type SecurityHeadersConfig struct {
	// Production enables Strict-Transport-Security.
	Production bool
	// EmbedPathPrefixes are routes served inside merchant iframes, which
	// must stay frameable.
	EmbedPathPrefixes []string
}

// SecurityHeaders sets baseline browser hardening headers.
func SecurityHeaders(cfg SecurityHeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !isEmbedPath(r.URL.Path, cfg.EmbedPathPrefixes) {
				h.Set("X-Frame-Options", "SAMEORIGIN")
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), payment=()")
			if cfg.Production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isEmbedPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// IframeCSP sets a content security policy permitting the widget to be
// framed from any merchant origin while restricting asset sources.
func IframeCSP() func(http.Handler) http.Handler {
	const policy = "frame-ancestors *; default-src 'self'; " +
		"script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: https:; connect-src 'self'"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", policy)
			next.ServeHTTP(w, r)
		})
	}
}

var (
	scriptTagRe   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	eventAttrRe   = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	maxSanitizeSz = int64(1 << 20)
)

// SanitizeInput strips script tags and neutralizes inline event handlers
// in JSON request bodies and query parameters. Defense in depth, not a
// substitute for output encoding.
func SanitizeInput() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			dirty := false
			for k, vals := range q {
				for i, v := range vals {
					if cleaned := sanitizeString(v); cleaned != v {
						vals[i] = cleaned
						dirty = true
					}
				}
				q[k] = vals
			}
			if dirty {
				r.URL.RawQuery = q.Encode()
			}

			if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxSanitizeSz))
				_ = r.Body.Close()
				if err == nil {
					cleaned := sanitizeString(string(body))
					r.Body = io.NopCloser(bytes.NewReader([]byte(cleaned)))
					r.ContentLength = int64(len(cleaned))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func sanitizeString(s string) string {
	s = scriptTagRe.ReplaceAllString(s, "")
	return eventAttrRe.ReplaceAllString(s, "data-removed=")
}

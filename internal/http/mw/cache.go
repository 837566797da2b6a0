package mw

import (
	"net/http"
	"strings"
)

// CachePolicy defines caching behavior for a route pattern.
type CachePolicy struct {
	// Pattern is the route pattern to match (prefix match).
	Pattern string
	// CacheControl is the Cache-Control header value to set.
	CacheControl string
}

// CacheConfig holds the cache middleware configuration.
type CacheConfig struct {
	// Policies are the cache policies to apply, matched in order.
	Policies []CachePolicy
	// DefaultPolicy is applied when no policy matches (empty = no header set).
	DefaultPolicy string
}

// DefaultCacheConfig returns cache defaults for the API. Probes are never
// cached, widget bundle assets get a short stale-while-revalidate cache,
// static assets cache long, API JSON is never stored.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultPolicy: "no-store",
		Policies: []CachePolicy{
			{Pattern: "/healthz", CacheControl: "no-store"},
			{Pattern: "/readyz", CacheControl: "no-store"},
			{Pattern: "/api/v1/health", CacheControl: "public, max-age=30"},

			// Widget bundle assets are revved on deploy.
			{Pattern: "/widget/assets/", CacheControl: "public, max-age=31536000, immutable"},
			{Pattern: "/widget/", CacheControl: "public, max-age=300, stale-while-revalidate=60"},

			{Pattern: "/api/v1/widget/", CacheControl: "no-store"},
			{Pattern: "/api/v1/account/", CacheControl: "private, no-cache"},
		},
	}
}

// Cache returns middleware that sets Cache-Control headers based on route
// patterns. Mutating methods always get no-store.
func Cache(cfg CacheConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path
			for _, policy := range cfg.Policies {
				if path == policy.Pattern || strings.HasPrefix(path, policy.Pattern) {
					w.Header().Set("Cache-Control", policy.CacheControl)
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.DefaultPolicy != "" {
				w.Header().Set("Cache-Control", cfg.DefaultPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Package domains decides whether a request origin is permitted for an
// account. Patterns are bare hostnames ("shop.example.com") or wildcards
// ("*.example.com") matching the base domain and any subdomain.
package domains

import (
	"net/url"
	"strings"
)

// localAllowlist is consulted for test-mode keys so merchants can develop
// against localhost without touching their domain allowlist.
var localAllowlist = []string{"localhost", "127.0.0.1", "0.0.0.0"}

// ExtractDomain parses a URL or Origin header value and returns the
// hostname, or "" when the value cannot be parsed. Bare hosts and
// host:port forms are accepted as-is.
func ExtractDomain(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return ""
		}
		return u.Host
	}
	// Origin values are URLs in browsers, but embedding code sometimes
	// sends a bare host. Reject anything with a path.
	if strings.ContainsAny(raw, "/ ") {
		return ""
	}
	return raw
}

// IsAllowed reports whether domain may use the account in the given key
// mode. Test mode first consults the built-in local allowlist. The empty
// domain (no Origin/Referer sent, i.e. a server-to-server call) is the
// caller's concern: middleware skips the check entirely rather than
// calling this with "".
func IsAllowed(domain string, allowed []string, testMode bool) bool {
	if domain == "" {
		return false
	}

	if testMode && isLocalDomain(domain) {
		return true
	}

	for _, pattern := range allowed {
		if matches(domain, pattern) {
			return true
		}
	}
	return false
}

// isLocalDomain matches localhost variants, with or without a port, plus
// *.localhost and *.local suffixes.
func isLocalDomain(domain string) bool {
	host := domain
	if i := strings.LastIndex(domain, ":"); i > 0 {
		host = domain[:i]
	}
	for _, local := range localAllowlist {
		if host == local {
			return true
		}
	}
	return strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}

// matches applies one allowlist pattern. "*.base" matches base itself and
// any subdomain of base; anything else is an exact match.
func matches(domain, pattern string) bool {
	if strings.HasPrefix(pattern, "*.") {
		base := strings.TrimPrefix(pattern, "*.")
		return domain == base || strings.HasSuffix(domain, "."+base)
	}
	return domain == pattern
}

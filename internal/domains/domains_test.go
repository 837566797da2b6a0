package domains

import "testing"

// ========================================
// ExtractDomain Tests
// ========================================

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://shop.example.com", "shop.example.com"},
		{"http://localhost:3000", "localhost:3000"},
		{"https://example.com/checkout?x=1", "example.com"},
		{"example.com", "example.com"},
		{"localhost:3000", "localhost:3000"},
		{"", ""},
		{"not a url", ""},
		{"https://", ""},
	}
	for _, tt := range tests {
		if got := ExtractDomain(tt.in); got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ========================================
// Wildcard Matching Tests
// ========================================

func TestIsAllowed_Wildcards(t *testing.T) {
	allowed := []string{"*.myshop.com"}

	tests := []struct {
		domain string
		want   bool
	}{
		{"shop.myshop.com", true},
		{"myshop.com", true},
		{"deep.sub.myshop.com", true},
		{"evil.com", false},
		{"notmyshop.com", false},
		{"myshop.com.evil.com", false},
	}
	for _, tt := range tests {
		if got := IsAllowed(tt.domain, allowed, false); got != tt.want {
			t.Errorf("IsAllowed(%q, *.myshop.com) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}

func TestIsAllowed_ExactMatch(t *testing.T) {
	allowed := []string{"example.com"}

	if !IsAllowed("example.com", allowed, false) {
		t.Error("exact domain should match")
	}
	if IsAllowed("sub.example.com", allowed, false) {
		t.Error("subdomain should not match a non-wildcard pattern")
	}
	if IsAllowed("evil.com", allowed, false) {
		t.Error("unrelated domain should not match")
	}
}

// ========================================
// Test-Mode Local Allowance
// ========================================

func TestIsAllowed_TestModeLocalhost(t *testing.T) {
	tests := []struct {
		domain   string
		testMode bool
		want     bool
	}{
		{"localhost:3000", true, true},
		{"localhost", true, true},
		{"127.0.0.1", true, true},
		{"127.0.0.1:8080", true, true},
		{"0.0.0.0", true, true},
		{"app.localhost", true, true},
		{"dev.local", true, true},
		{"localhost", false, false},
		{"localhost:3000", false, false},
		{"127.0.0.1", false, false},
	}
	for _, tt := range tests {
		if got := IsAllowed(tt.domain, nil, tt.testMode); got != tt.want {
			t.Errorf("IsAllowed(%q, nil, testMode=%v) = %v, want %v",
				tt.domain, tt.testMode, got, tt.want)
		}
	}
}

func TestIsAllowed_TestModeStillChecksAllowlist(t *testing.T) {
	allowed := []string{"staging.myshop.com"}
	if !IsAllowed("staging.myshop.com", allowed, true) {
		t.Error("test mode should still honor the allowlist for non-local domains")
	}
	if IsAllowed("evil.com", allowed, true) {
		t.Error("test mode must not allow arbitrary remote domains")
	}
}

func TestIsAllowed_EmptyDomain(t *testing.T) {
	if IsAllowed("", []string{"*.myshop.com"}, true) {
		t.Error("empty domain must not match anything")
	}
}

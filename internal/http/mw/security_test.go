package mw

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stylemirror/tryon-api/internal/models"
)

func corsStore(key string, allowedDomains []string) AccountStore {
	account := testAccount(key)
	account.LiveKey = key
	account.AllowedDomains = allowedDomains
	return &fakeStore{accounts: map[string]*models.Account{key: account}}
}

// ---------------------------------------------------------------------------
// WidgetCORS
// ---------------------------------------------------------------------------

func TestWidgetCORSPreflight(t *testing.T) {
	handler := WidgetCORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run on preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/widget/sessions", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Allow-Methods missing")
	}
}

func TestWidgetCORSNoKeyWildcard(t *testing.T) {
	handler := WidgetCORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widget/config", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("wildcard origin must not carry credentials")
	}
}

func TestWidgetCORSTestKeyDevOrigin(t *testing.T) {
	handler := WidgetCORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widget/config", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set(MerchantKeyHeader, "mk_test_abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("dev origin with test key should be credentialed")
	}
}

func TestWidgetCORSLiveKeyAllowedDomain(t *testing.T) {
	key := "mk_live_abc"
	handler := WidgetCORS(corsStore(key, []string{"*.myshop.com"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widget/config", nil)
	req.Header.Set("Origin", "https://checkout.myshop.com")
	req.Header.Set(MerchantKeyHeader, key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://checkout.myshop.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("allowed domain with live key should be credentialed")
	}
}

func TestWidgetCORSLiveKeyUnmatchedFallsBack(t *testing.T) {
	// This layer never hard-blocks; auth rejects the request later.
	key := "mk_live_abc"
	reached := false
	handler := WidgetCORS(corsStore(key, []string{"myshop.com"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true }))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widget/config", nil)
	req.Header.Set("Origin", "https://evil.com")
	req.Header.Set(MerchantKeyHeader, key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("fallback must not carry credentials")
	}
	if !reached {
		t.Error("request must still reach the next handler")
	}
}

// ---------------------------------------------------------------------------
// SecurityHeaders / IframeCSP
// ---------------------------------------------------------------------------

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{Production: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/usage", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing in production")
	}
	if rec.Header().Get("Permissions-Policy") == "" {
		t.Error("Permissions-Policy missing")
	}
}

func TestSecurityHeadersEmbedRouteFrameable(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{EmbedPathPrefixes: []string{"/widget/"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/widget/embed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Frame-Options") != "" {
		t.Error("embed routes must not set X-Frame-Options")
	}
}

func TestSecurityHeadersNoHSTSInDev(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should be production only")
	}
}

func TestIframeCSPAllowsFraming(t *testing.T) {
	handler := IframeCSP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/widget/embed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "frame-ancestors *") {
		t.Errorf("CSP = %q, want frame-ancestors *", csp)
	}
}

// ---------------------------------------------------------------------------
// SanitizeInput
// ---------------------------------------------------------------------------

func TestSanitizeInputStripsScriptFromBody(t *testing.T) {
	var got string
	handler := SanitizeInput()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
	}))

	body := `{"product_name":"<script>alert(1)</script>Dress"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/widget/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if strings.Contains(got, "<script>") {
		t.Errorf("script tag survived: %q", got)
	}
	if !strings.Contains(got, "Dress") {
		t.Errorf("legitimate content lost: %q", got)
	}
}

func TestSanitizeInputNeutralizesEventHandlers(t *testing.T) {
	var got string
	handler := SanitizeInput()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("name")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widget/config?name=%3Cimg%20onerror%3Dalert(1)%3E", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if strings.Contains(strings.ToLower(got), "onerror=") {
		t.Errorf("event handler survived: %q", got)
	}
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func TestCachePolicyMatch(t *testing.T) {
	handler := Cache(DefaultCacheConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/healthz", "no-store"},
		{http.MethodGet, "/widget/assets/app.js", "public, max-age=31536000, immutable"},
		{http.MethodGet, "/api/v1/widget/sessions/ses_x", "no-store"},
		{http.MethodGet, "/api/v1/account/usage", "private, no-cache"},
		{http.MethodPost, "/api/v1/widget/sessions", "no-store"},
		{http.MethodGet, "/unknown", "no-store"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("Cache-Control"); got != tt.want {
			t.Errorf("%s %s: Cache-Control = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stylemirror/tryon-api/internal/auth"
	"github.com/stylemirror/tryon-api/internal/ratelimit"
)

func TestDashboardAuthValidToken(t *testing.T) {
	verifier := auth.NewVerifier("test-secret")
	token, err := verifier.IssueToken("acct_1", "m@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var claims *auth.Claims
	handler := DashboardAuth(verifier, ratelimit.New())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims = GetDashboardClaims(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if claims == nil || claims.AccountID != "acct_1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestDashboardAuthMissingHeader(t *testing.T) {
	handler := DashboardAuth(auth.NewVerifier("s"), ratelimit.New())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/usage", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestDashboardAuthBruteForceTripsLimiter(t *testing.T) {
	limiter := ratelimit.New()
	handler := DashboardAuth(auth.NewVerifier("s"), limiter)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/account/usage", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		req.RemoteAddr = "203.0.113.9:4000"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 after repeated failures", rec.Code)
	}
}

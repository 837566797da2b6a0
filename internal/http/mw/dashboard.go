package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/stylemirror/tryon-api/internal/auth"
	"github.com/stylemirror/tryon-api/internal/ratelimit"
)

// DashboardClaimsKey is the context key for dashboard token claims.
const DashboardClaimsKey ContextKey = "dashboard_claims"

// DashboardAuth returns middleware that validates dashboard bearer
// tokens. Failed attempts count against the strict login policy keyed by
// client IP, so brute-forcing tokens trips the limiter quickly.
func DashboardAuth(verifier *auth.Verifier, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				if res := limiter.Check("login:"+clientIP(r), ratelimit.PolicyLogin); !res.Allowed {
					writeRateLimited(w, res)
					return
				}
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), DashboardClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetDashboardClaims retrieves dashboard claims from context.
func GetDashboardClaims(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(DashboardClaimsKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// Package mw contains HTTP middleware for the StyleMirror API.
package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/stylemirror/tryon-api/internal/apikey"
	"github.com/stylemirror/tryon-api/internal/domains"
	"github.com/stylemirror/tryon-api/internal/models"
	"github.com/stylemirror/tryon-api/internal/quota"
	"github.com/stylemirror/tryon-api/internal/ratelimit"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// AccountKey is the context key for the authenticated account.
	AccountKey ContextKey = "widget_account"
	// KeyInfoKey is the context key for the resolved key details.
	KeyInfoKey ContextKey = "widget_key_info"
)

// MerchantKeyHeader carries the merchant API key on widget requests.
const MerchantKeyHeader = "X-Merchant-Key"

// KeyInfo describes which credential authenticated the request.
type KeyInfo struct {
	KeyID    string // id of the matched named key, empty for the canonical pair
	KeyName  string
	TestMode bool
}

// AccountStore is the account lookup surface the auth pipeline needs.
type AccountStore interface {
	GetByAPIKey(ctx context.Context, key string) (*models.Account, error)
	ResetQuota(ctx context.Context, accountID string, nextResetAt time.Time) error
	TouchKey(ctx context.Context, keyID string, usedAt time.Time) error
}

// WidgetAuth gates widget-facing requests behind a valid, unsuspended,
// domain-permitted, rate-permitted account context.
type WidgetAuth struct {
	store   AccountStore
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewWidgetAuth creates the widget auth middleware.
func NewWidgetAuth(store AccountStore, limiter *ratelimit.Limiter, logger *slog.Logger) *WidgetAuth {
	if logger == nil {
		logger = slog.Default()
	}
	return &WidgetAuth{store: store, limiter: limiter, logger: logger.With("component", "widget_auth")}
}

// Require returns middleware that rejects requests without a valid key.
func (a *WidgetAuth) Require() func(http.Handler) http.Handler {
	return a.middleware(true)
}

// Optional returns middleware that skips all checks when no key header is
// present, but runs the full pipeline when one is supplied.
func (a *WidgetAuth) Optional() func(http.Handler) http.Handler {
	return a.middleware(false)
}

func (a *WidgetAuth) middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Preflight never carries custom headers; CORS answers it.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(MerchantKeyHeader)
			if key == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing X-Merchant-Key header")
				return
			}

			if !apikey.IsValidFormat(key) {
				writeAuthError(w, http.StatusUnauthorized, "INVALID_API_KEY_FORMAT", "API key format is invalid")
				return
			}

			account, err := a.store.GetByAPIKey(r.Context(), key)
			if err != nil {
				a.logger.Error("account lookup failed", "error", err)
				writeAuthError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}
			if account == nil {
				writeAuthError(w, http.StatusUnauthorized, "INVALID_MERCHANT_KEY", "API key not recognized")
				return
			}

			if !account.EmailVerified {
				writeAuthError(w, http.StatusForbidden, "ACCOUNT_NOT_VERIFIED", "Verify your account email before using the widget")
				return
			}
			if account.Status != models.AccountActive {
				writeAuthError(w, http.StatusForbidden, "MERCHANT_SUSPENDED", "Account is suspended")
				return
			}

			testMode := apikey.IsTestKey(key)

			// Only a present-but-mismatched Origin rejects; absent Origin
			// is treated as a server-to-server call.
			if origin := requestOrigin(r); origin != "" {
				domain := domains.ExtractDomain(origin)
				if !domains.IsAllowed(domain, account.AllowedDomains, testMode) {
					writeAuthError(w, http.StatusForbidden, "DOMAIN_NOT_ALLOWED", "Domain "+domain+" is not in the allowed domains for this account")
					return
				}
			}

			res := a.limiter.Check("account:"+account.ID, ratelimit.PolicyMerchant)
			setRateLimitHeaders(w, ratelimit.PolicyMerchant, res)
			if !res.Allowed {
				writeRateLimited(w, res)
				return
			}

			ipRes := a.limiter.Check("ip:"+clientIP(r), ratelimit.PolicyWidgetIP)
			if !ipRes.Allowed {
				writeRateLimited(w, ipRes)
				return
			}

			now := time.Now().UTC()
			if quota.ShouldReset(account, now) {
				nextReset := quota.NextResetDate(now)
				if err := a.store.ResetQuota(r.Context(), account.ID, nextReset); err != nil {
					a.logger.Error("quota reset failed", "account_id", account.ID, "error", err)
					writeAuthError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
					return
				}
				account.QuotaUsed = 0
				account.QuotaResetAt = &nextReset
			}

			info := KeyInfo{TestMode: testMode}
			for i := range account.Keys {
				if account.Keys[i].Key == key && !account.Keys[i].Revoked() {
					info.KeyID = account.Keys[i].ID
					info.KeyName = account.Keys[i].Name
					break
				}
			}
			if info.KeyID != "" {
				if err := a.store.TouchKey(r.Context(), info.KeyID, time.Now().UTC()); err != nil {
					a.logger.Warn("failed to record key usage", "key_id", info.KeyID, "error", err)
				}
			}

			ctx := context.WithValue(r.Context(), AccountKey, account)
			ctx = context.WithValue(ctx, KeyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireQuota gates endpoints that consume quota. It expects an account
// already attached by the auth middleware.
func RequireQuota() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := GetAccount(r.Context())
			if account == nil {
				writeAuthError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing X-Merchant-Key header")
				return
			}
			if quota.IsExceeded(account) {
				eff := quota.EffectiveQuota(account)
				msg := "Monthly try-on limit reached. Upgrade your plan to continue."
				if eff.Lifetime {
					msg = "Lifetime try-on limit reached. Upgrade to a paid plan to continue."
				}
				writeAuthError(w, http.StatusPaymentRequired, "QUOTA_EXCEEDED", msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAccount retrieves the authenticated account from context.
func GetAccount(ctx context.Context) *models.Account {
	account, ok := ctx.Value(AccountKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// GetKeyInfo retrieves the resolved key details from context.
func GetKeyInfo(ctx context.Context) KeyInfo {
	info, _ := ctx.Value(KeyInfoKey).(KeyInfo)
	return info
}

func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	return r.Header.Get("Referer")
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from X-Forwarded-For.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateLimitHeaders(w http.ResponseWriter, policy ratelimit.Policy, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxRequests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

func writeRateLimited(w http.ResponseWriter, res ratelimit.Result) {
	retryAfter := int(time.Until(res.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeAuthError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests, slow down")
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

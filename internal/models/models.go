// Package models contains domain models for the StyleMirror API.
// Accounts are the tenant entity owning API keys, quota, and webhook
// configuration; widget sessions track one shopper's try-on attempt.
package models

import "time"

// Plan identifies a subscription plan.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

// DefaultTotalQuota is the lifetime try-on cap applied when an account
// has neither a monthly quota nor an explicit total quota.
const DefaultTotalQuota = 100

// PlanMonthlyQuota maps paid plans to their monthly try-on quota.
// Free-plan accounts have no monthly quota and use the lifetime cap.
var PlanMonthlyQuota = map[Plan]int{
	PlanStarter:    500,
	PlanGrowth:     5000,
	PlanEnterprise: 50000,
}

// AccountStatus is the account lifecycle state.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// Account is the tenant entity (historically "merchant" or "user").
type Account struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	Plan           Plan              `json:"plan"`
	LiveKey        string            `json:"-"`
	TestKey        string            `json:"-"`
	Keys           []APIKey          `json:"keys,omitempty"`
	AllowedDomains []string          `json:"allowed_domains"`
	MonthlyQuota   *int              `json:"monthly_quota,omitempty"`
	TotalQuota     int               `json:"total_quota"`
	QuotaUsed      int               `json:"quota_used"`
	StudioUsed     int               `json:"studio_used"`
	WidgetUsed     int               `json:"widget_used"`
	QuotaResetAt   *time.Time        `json:"quota_reset_at,omitempty"`
	Status         AccountStatus     `json:"status"`
	EmailVerified  bool              `json:"email_verified"`
	WebhookURL     string            `json:"webhook_url,omitempty"`
	WebhookSecret  string            `json:"-"` // whsec_..., encrypted at rest
	Settings       map[string]string `json:"settings,omitempty"`
	StripeCustomer string            `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// APIKey is a named merchant key. The canonical live/test pair is also
// mirrored into this list so every credential has an id and display name
// for analytics.
type APIKey struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"-"`
	Name       string     `json:"name"`
	Key        string     `json:"-"` // full key value, only shown on creation
	KeyPrefix  string     `json:"key_prefix"`
	TestMode   bool       `json:"test_mode"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// SessionStatus is the widget session state machine.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionExpired    SessionStatus = "expired"
)

// SessionTTL is how long a widget session stays usable after creation.
const SessionTTL = time.Hour

// WidgetSession represents one embedded try-on attempt.
type WidgetSession struct {
	ID        string        `json:"id"`
	AccountID string        `json:"-"`
	Status    SessionStatus `json:"status"`

	// Product snapshot supplied by the embedding site.
	ProductImage    string  `json:"product_image"`
	ProductName     string  `json:"product_name,omitempty"`
	ProductID       string  `json:"product_id,omitempty"`
	ProductCategory string  `json:"product_category,omitempty"`
	ProductPrice    float64 `json:"product_price,omitempty"`
	ProductCurrency string  `json:"product_currency,omitempty"`
	ProductURL      string  `json:"product_url,omitempty"`

	// Shopper identity/photo as supplied by the embedding site.
	ExternalUserID string `json:"external_user_id,omitempty"`
	UserImage      string `json:"user_image,omitempty"`

	// Provenance of the creating request.
	OriginDomain string `json:"origin_domain,omitempty"`
	UserAgent    string `json:"-"`
	IPAddress    string `json:"-"`

	// Outcome fields, populated on completion or failure.
	ResultImage      string `json:"result_image,omitempty"`
	ResultThumbnail  string `json:"result_thumbnail,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`

	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the session is past its expiry or has been
// explicitly cancelled. Expiry is a read-time check, not a sweep.
func (s *WidgetSession) Expired(now time.Time) bool {
	return s.Status == SessionExpired || now.After(s.ExpiresAt)
}

// Webhook event types.
const (
	EventSessionCreated  = "session.created"
	EventTryOnProcessing = "try-on.processing"
	EventTryOnCompleted  = "try-on.completed"
	EventTryOnFailed     = "try-on.failed"
)

// AnalyticsEvent is an append-only usage record.
type AnalyticsEvent struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	SessionID string         `json:"session_id,omitempty"`
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

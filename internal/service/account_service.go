package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stylemirror/tryon-api/internal/apikey"
	"github.com/stylemirror/tryon-api/internal/crypto"
	"github.com/stylemirror/tryon-api/internal/models"
	"github.com/stylemirror/tryon-api/internal/quota"
	"github.com/stylemirror/tryon-api/internal/repository"
)

// AccountService manages merchant accounts: key issuance and rotation,
// webhook configuration, usage reporting, and data deletion.
type AccountService struct {
	accounts  repository.AccountRepository
	sessions  repository.SessionRepository
	analytics repository.AnalyticsRepository
	encryptor *crypto.Encryptor
	storage   *StorageService
	logger    *slog.Logger
}

// NewAccountService creates the account service.
func NewAccountService(repos *repository.Repositories, encryptor *crypto.Encryptor, storage *StorageService, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		accounts:  repos.Account,
		sessions:  repos.Session,
		analytics: repos.Analytics,
		encryptor: encryptor,
		storage:   storage,
		logger:    logger.With("component", "accounts"),
	}
}

// Register creates an account on the free plan with a fresh live/test
// key pair. Accounts are provisioned by an operator, so the contact
// email counts as verified; the widget auth gate rejects unverified
// accounts outright.
func (s *AccountService) Register(ctx context.Context, email string) (*models.Account, error) {
	if email == "" || !strings.Contains(email, "@") {
		return nil, ValidationError("a valid email is required")
	}

	keys, err := apikey.GenerateAccountKeys()
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:            "acct_" + ulid.Make().String(),
		Email:         email,
		Plan:          models.PlanFree,
		LiveKey:       keys.LiveKey,
		TestKey:       keys.TestKey,
		TotalQuota:    models.DefaultTotalQuota,
		Status:        models.AccountActive,
		EmailVerified: true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount returns an account by id.
func (s *AccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// UpdateAllowedDomains replaces the account's domain allowlist.
func (s *AccountService) UpdateAllowedDomains(ctx context.Context, accountID string, patterns []string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccessDenied
	}
	for _, p := range patterns {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" || strings.ContainsAny(trimmed, "/ ") {
			return nil, ValidationError("invalid domain pattern: " + p)
		}
	}
	account.AllowedDomains = patterns
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ---------------------------------------------------------------------------
// Named API keys
// ---------------------------------------------------------------------------

// CreatedKey carries the full key value, which is only shown once.
type CreatedKey struct {
	Key     models.APIKey
	FullKey string
}

// CreateKey issues a named key. The full value is returned once; only
// the display prefix is persisted in listings.
func (s *AccountService) CreateKey(ctx context.Context, accountID, name string, testMode bool) (*CreatedKey, error) {
	if name == "" {
		return nil, ValidationError("key name is required")
	}

	prefix := apikey.LivePrefix
	if testMode {
		prefix = apikey.TestPrefix
	}
	value, err := apikey.GenerateKey(prefix)
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		ID:        "key_" + ulid.Make().String(),
		AccountID: accountID,
		Name:      name,
		Key:       value,
		KeyPrefix: value[:len(prefix)+4] + "...",
		TestMode:  testMode,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.accounts.CreateKey(ctx, key); err != nil {
		return nil, err
	}
	return &CreatedKey{Key: *key, FullKey: value}, nil
}

// ListKeys returns the account's named keys, newest first, without full
// key values.
func (s *AccountService) ListKeys(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	keys, err := s.accounts.GetKeys(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		k.Key = ""
	}
	return keys, nil
}

// RevokeKey disables a named key immediately.
func (s *AccountService) RevokeKey(ctx context.Context, accountID, keyID string) error {
	keys, err := s.accounts.GetKeys(ctx, accountID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			return s.accounts.RevokeKey(ctx, accountID, keyID)
		}
	}
	return ErrKeyNotFound
}

// RotateKey revokes the old key and issues a replacement with the same
// name and mode.
func (s *AccountService) RotateKey(ctx context.Context, accountID, keyID string) (*CreatedKey, error) {
	keys, err := s.accounts.GetKeys(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var old *models.APIKey
	for _, k := range keys {
		if k.ID == keyID {
			old = k
			break
		}
	}
	if old == nil {
		return nil, ErrKeyNotFound
	}
	if err := s.accounts.RevokeKey(ctx, accountID, keyID); err != nil {
		return nil, err
	}
	return s.CreateKey(ctx, accountID, old.Name, old.TestMode)
}

// ---------------------------------------------------------------------------
// Webhook configuration
// ---------------------------------------------------------------------------

// ConfigureWebhook sets the delivery URL and issues a fresh signing
// secret, returned in plaintext exactly once. Passing an empty URL
// disables webhooks.
func (s *AccountService) ConfigureWebhook(ctx context.Context, accountID, webhookURL string) (string, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrAccessDenied
	}

	if webhookURL == "" {
		account.WebhookURL = ""
		account.WebhookSecret = ""
		return "", s.accounts.Update(ctx, account)
	}

	parsed, err := url.Parse(webhookURL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return "", ValidationError("webhook_url must be an absolute http(s) URL")
	}

	secret, err := apikey.GenerateWebhookSecret()
	if err != nil {
		return "", err
	}
	stored := secret
	if s.encryptor != nil {
		stored, err = s.encryptor.Encrypt(secret)
		if err != nil {
			return "", err
		}
	}

	account.WebhookURL = webhookURL
	account.WebhookSecret = stored
	if err := s.accounts.Update(ctx, account); err != nil {
		return "", err
	}
	return secret, nil
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

// Usage summarizes an account's quota consumption.
type Usage struct {
	Plan         models.Plan     `json:"plan"`
	Quota        quota.Effective `json:"quota"`
	StudioUsed   int             `json:"studio_used"`
	WidgetUsed   int             `json:"widget_used"`
	QuotaResetAt *time.Time      `json:"quota_reset_at,omitempty"`
}

// GetUsage reports the active quota ceiling and per-surface counters.
func (s *AccountService) GetUsage(ctx context.Context, accountID string) (*Usage, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccessDenied
	}
	return &Usage{
		Plan:         account.Plan,
		Quota:        quota.EffectiveQuota(account),
		StudioUsed:   account.StudioUsed,
		WidgetUsed:   account.WidgetUsed,
		QuotaResetAt: account.QuotaResetAt,
	}, nil
}

// ---------------------------------------------------------------------------
// Plan sync and data deletion
// ---------------------------------------------------------------------------

// ApplyPlan moves the account onto a plan, switching between lifetime
// and monthly quota modes.
func (s *AccountService) ApplyPlan(ctx context.Context, accountID string, plan models.Plan) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccessDenied
	}

	account.Plan = plan
	if monthly, ok := models.PlanMonthlyQuota[plan]; ok {
		account.MonthlyQuota = &monthly
		if account.QuotaResetAt == nil {
			next := quota.NextResetDate(time.Now().UTC())
			account.QuotaResetAt = &next
		}
	} else {
		account.MonthlyQuota = nil
		account.QuotaResetAt = nil
		if account.TotalQuota == 0 {
			account.TotalQuota = models.DefaultTotalQuota
		}
	}
	return s.accounts.Update(ctx, account)
}

// DeleteSessions removes all of the account's sessions, their analytics
// rows, and any stored result images.
func (s *AccountService) DeleteSessions(ctx context.Context, accountID string) (int, error) {
	images, err := s.sessions.DeleteByAccountID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if err := s.analytics.DeleteByAccountID(ctx, accountID); err != nil {
		return 0, err
	}
	for _, img := range images {
		if s.storage == nil {
			break
		}
		if err := s.storage.DeleteByURL(ctx, img); err != nil {
			s.logger.Warn("failed to delete stored image", "url", img, "error", err)
		}
	}
	return len(images), nil
}

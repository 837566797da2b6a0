package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stylemirror/tryon-api/internal/http/mw"
	"github.com/stylemirror/tryon-api/internal/service"
)

// AccountHandler serves the merchant dashboard endpoints via huma.
type AccountHandler struct {
	accounts *service.AccountService
	webhooks *service.WebhookService
}

// NewAccountHandler creates the dashboard handler.
func NewAccountHandler(accounts *service.AccountService, webhooks *service.WebhookService) *AccountHandler {
	return &AccountHandler{accounts: accounts, webhooks: webhooks}
}

func accountID(ctx context.Context) string {
	claims := mw.GetDashboardClaims(ctx)
	if claims == nil {
		return ""
	}
	return claims.AccountID
}

// mapServiceError converts service errors to huma status errors.
func mapServiceError(err error, fallback string) error {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return huma.NewError(svcErr.Status, svcErr.Message)
	}
	return huma.Error500InternalServerError(fallback)
}

// APIKeyResponse represents a named key in responses. Full key values
// appear only in creation/rotation responses.
type APIKeyResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	KeyPrefix  string `json:"key_prefix"`
	TestMode   bool   `json:"test_mode"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
	RevokedAt  string `json:"revoked_at,omitempty"`
}

// ListKeysOutput represents the key list response.
type ListKeysOutput struct {
	Body struct {
		Keys []APIKeyResponse `json:"keys"`
	}
}

// ListKeys lists the account's named keys.
func (h *AccountHandler) ListKeys(ctx context.Context, input *struct{}) (*ListKeysOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	keys, err := h.accounts.ListKeys(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list keys")
	}

	out := &ListKeysOutput{}
	for _, key := range keys {
		resp := APIKeyResponse{
			ID:        key.ID,
			Name:      key.Name,
			KeyPrefix: key.KeyPrefix,
			TestMode:  key.TestMode,
			CreatedAt: key.CreatedAt.Format(time.RFC3339),
		}
		if key.LastUsedAt != nil {
			resp.LastUsedAt = key.LastUsedAt.Format(time.RFC3339)
		}
		if key.RevokedAt != nil {
			resp.RevokedAt = key.RevokedAt.Format(time.RFC3339)
		}
		out.Body.Keys = append(out.Body.Keys, resp)
	}
	return out, nil
}

// CreateKeyInput represents the key creation request.
type CreateKeyInput struct {
	Body struct {
		Name     string `json:"name" minLength:"1" doc:"Descriptive name for the key"`
		TestMode bool   `json:"test_mode,omitempty" doc:"Issue a test-mode key"`
	}
}

// CreateKeyOutput carries the full key value, shown exactly once.
type CreateKeyOutput struct {
	Body struct {
		Key     APIKeyResponse `json:"key"`
		FullKey string         `json:"full_key" doc:"Complete key value; store it now, it is not shown again"`
	}
}

// CreateKey issues a named key.
func (h *AccountHandler) CreateKey(ctx context.Context, input *CreateKeyInput) (*CreateKeyOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	created, err := h.accounts.CreateKey(ctx, id, input.Body.Name, input.Body.TestMode)
	if err != nil {
		return nil, mapServiceError(err, "failed to create key")
	}

	out := &CreateKeyOutput{}
	out.Body.Key = APIKeyResponse{
		ID:        created.Key.ID,
		Name:      created.Key.Name,
		KeyPrefix: created.Key.KeyPrefix,
		TestMode:  created.Key.TestMode,
		CreatedAt: created.Key.CreatedAt.Format(time.RFC3339),
	}
	out.Body.FullKey = created.FullKey
	return out, nil
}

// KeyIDInput addresses a key by path parameter.
type KeyIDInput struct {
	ID string `path:"id" doc:"Key ID"`
}

// RevokeKeyOutput confirms revocation.
type RevokeKeyOutput struct {
	Body struct {
		Revoked bool `json:"revoked"`
	}
}

// RevokeKey disables a key immediately.
func (h *AccountHandler) RevokeKey(ctx context.Context, input *KeyIDInput) (*RevokeKeyOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	if err := h.accounts.RevokeKey(ctx, id, input.ID); err != nil {
		return nil, mapServiceError(err, "failed to revoke key")
	}
	out := &RevokeKeyOutput{}
	out.Body.Revoked = true
	return out, nil
}

// RotateKey revokes the key and issues a replacement.
func (h *AccountHandler) RotateKey(ctx context.Context, input *KeyIDInput) (*CreateKeyOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	rotated, err := h.accounts.RotateKey(ctx, id, input.ID)
	if err != nil {
		return nil, mapServiceError(err, "failed to rotate key")
	}

	out := &CreateKeyOutput{}
	out.Body.Key = APIKeyResponse{
		ID:        rotated.Key.ID,
		Name:      rotated.Key.Name,
		KeyPrefix: rotated.Key.KeyPrefix,
		TestMode:  rotated.Key.TestMode,
		CreatedAt: rotated.Key.CreatedAt.Format(time.RFC3339),
	}
	out.Body.FullKey = rotated.FullKey
	return out, nil
}

// ConfigureWebhookInput sets the delivery URL.
type ConfigureWebhookInput struct {
	Body struct {
		WebhookURL string `json:"webhook_url" doc:"Absolute http(s) URL, empty to disable"`
	}
}

// ConfigureWebhookOutput carries the fresh signing secret, shown once.
type ConfigureWebhookOutput struct {
	Body struct {
		WebhookURL    string `json:"webhook_url"`
		WebhookSecret string `json:"webhook_secret,omitempty" doc:"Signing secret; store it now, it is not shown again"`
	}
}

// ConfigureWebhook sets the webhook URL and rotates the signing secret.
func (h *AccountHandler) ConfigureWebhook(ctx context.Context, input *ConfigureWebhookInput) (*ConfigureWebhookOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	secret, err := h.accounts.ConfigureWebhook(ctx, id, input.Body.WebhookURL)
	if err != nil {
		return nil, mapServiceError(err, "failed to configure webhook")
	}

	out := &ConfigureWebhookOutput{}
	out.Body.WebhookURL = input.Body.WebhookURL
	out.Body.WebhookSecret = secret
	return out, nil
}

// GetWebhookOutput reports the current delivery settings. The signing
// secret is never returned after configuration.
type GetWebhookOutput struct {
	Body struct {
		WebhookURL string `json:"webhook_url"`
		Enabled    bool   `json:"enabled"`
	}
}

// GetWebhook returns the current webhook configuration.
func (h *AccountHandler) GetWebhook(ctx context.Context, input *struct{}) (*GetWebhookOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	account, err := h.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to load account")
	}
	out := &GetWebhookOutput{}
	out.Body.WebhookURL = account.WebhookURL
	out.Body.Enabled = account.WebhookURL != ""
	return out, nil
}

// RegenerateWebhookSecret issues a fresh signing secret for the current
// webhook URL. Deliveries signed with the old secret stop verifying.
func (h *AccountHandler) RegenerateWebhookSecret(ctx context.Context, input *struct{}) (*ConfigureWebhookOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	account, err := h.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to load account")
	}
	if account.WebhookURL == "" {
		return nil, huma.Error400BadRequest("no webhook URL configured")
	}
	secret, err := h.accounts.ConfigureWebhook(ctx, id, account.WebhookURL)
	if err != nil {
		return nil, mapServiceError(err, "failed to regenerate secret")
	}
	out := &ConfigureWebhookOutput{}
	out.Body.WebhookURL = account.WebhookURL
	out.Body.WebhookSecret = secret
	return out, nil
}

// TestWebhookOutput is the synchronous test delivery outcome.
type TestWebhookOutput struct {
	Body service.TestResult
}

// TestWebhook makes a single synchronous test delivery.
func (h *AccountHandler) TestWebhook(ctx context.Context, input *struct{}) (*TestWebhookOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	return &TestWebhookOutput{Body: h.webhooks.SendTest(ctx, id)}, nil
}

// UsageOutput reports quota consumption.
type UsageOutput struct {
	Body service.Usage
}

// GetUsage reports the active quota ceiling and per-surface counters.
func (h *AccountHandler) GetUsage(ctx context.Context, input *struct{}) (*UsageOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	usage, err := h.accounts.GetUsage(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to load usage")
	}
	return &UsageOutput{Body: *usage}, nil
}

// UpdateDomainsInput replaces the domain allowlist.
type UpdateDomainsInput struct {
	Body struct {
		AllowedDomains []string `json:"allowed_domains" doc:"Hostnames or *.wildcard patterns"`
	}
}

// UpdateDomainsOutput echoes the stored allowlist.
type UpdateDomainsOutput struct {
	Body struct {
		AllowedDomains []string `json:"allowed_domains"`
	}
}

// UpdateDomains replaces the account's allowed domains.
func (h *AccountHandler) UpdateDomains(ctx context.Context, input *UpdateDomainsInput) (*UpdateDomainsOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	account, err := h.accounts.UpdateAllowedDomains(ctx, id, input.Body.AllowedDomains)
	if err != nil {
		return nil, mapServiceError(err, "failed to update domains")
	}
	out := &UpdateDomainsOutput{}
	out.Body.AllowedDomains = account.AllowedDomains
	return out, nil
}

// DeleteSessionsOutput reports the cascade result.
type DeleteSessionsOutput struct {
	Body struct {
		DeletedImages int `json:"deleted_images"`
	}
}

// DeleteSessions removes all of the account's sessions and their data.
func (h *AccountHandler) DeleteSessions(ctx context.Context, input *struct{}) (*DeleteSessionsOutput, error) {
	id := accountID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	n, err := h.accounts.DeleteSessions(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to delete sessions")
	}
	out := &DeleteSessionsOutput{}
	out.Body.DeletedImages = n
	return out, nil
}

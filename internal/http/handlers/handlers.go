package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stylemirror/tryon-api/internal/version"
)

// HealthCheckOutput represents the health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Version
	return out, nil
}

// Livez is the Kubernetes liveness probe.
func Livez(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz is the Kubernetes readiness probe; it checks database
// connectivity.
func Readyz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// RegisterDashboard wires the merchant dashboard operations onto a huma
// API. The router carrying the API must already apply dashboard auth.
func RegisterDashboard(api huma.API, h *AccountHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listKeys",
		Method:      http.MethodGet,
		Path:        "/api/v1/account/keys",
		Summary:     "List API keys",
		Tags:        []string{"Keys"},
	}, h.ListKeys)
	huma.Register(api, huma.Operation{
		OperationID: "createKey",
		Method:      http.MethodPost,
		Path:        "/api/v1/account/keys",
		Summary:     "Create an API key",
		Tags:        []string{"Keys"},
	}, h.CreateKey)
	huma.Register(api, huma.Operation{
		OperationID: "revokeKey",
		Method:      http.MethodDelete,
		Path:        "/api/v1/account/keys/{id}",
		Summary:     "Revoke an API key",
		Tags:        []string{"Keys"},
	}, h.RevokeKey)
	huma.Register(api, huma.Operation{
		OperationID: "rotateKey",
		Method:      http.MethodPost,
		Path:        "/api/v1/account/keys/{id}/rotate",
		Summary:     "Rotate an API key",
		Tags:        []string{"Keys"},
	}, h.RotateKey)

	huma.Register(api, huma.Operation{
		OperationID: "getWebhook",
		Method:      http.MethodGet,
		Path:        "/api/v1/account/webhook",
		Summary:     "Get webhook configuration",
		Tags:        []string{"Webhooks"},
	}, h.GetWebhook)
	huma.Register(api, huma.Operation{
		OperationID: "configureWebhook",
		Method:      http.MethodPut,
		Path:        "/api/v1/account/webhook",
		Summary:     "Configure webhook delivery",
		Tags:        []string{"Webhooks"},
	}, h.ConfigureWebhook)
	huma.Register(api, huma.Operation{
		OperationID: "testWebhook",
		Method:      http.MethodPost,
		Path:        "/api/v1/account/webhook/test",
		Summary:     "Send a test webhook",
		Tags:        []string{"Webhooks"},
	}, h.TestWebhook)
	huma.Register(api, huma.Operation{
		OperationID: "regenerateWebhookSecret",
		Method:      http.MethodPost,
		Path:        "/api/v1/account/webhook/secret",
		Summary:     "Regenerate the webhook signing secret",
		Tags:        []string{"Webhooks"},
	}, h.RegenerateWebhookSecret)

	huma.Register(api, huma.Operation{
		OperationID: "getUsage",
		Method:      http.MethodGet,
		Path:        "/api/v1/account/usage",
		Summary:     "Get usage statistics",
		Tags:        []string{"Usage"},
	}, h.GetUsage)

	huma.Register(api, huma.Operation{
		OperationID: "updateDomains",
		Method:      http.MethodPut,
		Path:        "/api/v1/account/domains",
		Summary:     "Update allowed domains",
		Tags:        []string{"Account"},
	}, h.UpdateDomains)

	huma.Register(api, huma.Operation{
		OperationID: "deleteSessions",
		Method:      http.MethodDelete,
		Path:        "/api/v1/account/sessions",
		Summary:     "Delete all sessions",
		Description: "Removes every widget session, its analytics rows, and stored result images.",
		Tags:        []string{"Account"},
	}, h.DeleteSessions)
}

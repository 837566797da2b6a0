package handlers

import (
	"encoding/json"
	"net/http"
)

// Widget API error codes. These are stable identifiers embedded scripts
// switch on, so changing one is a breaking change for merchants.
const (
	CodeMissingAPIKey       = "MISSING_API_KEY"
	CodeInvalidKeyFormat    = "INVALID_API_KEY_FORMAT"
	CodeInvalidKey          = "INVALID_API_KEY"
	CodeInvalidMerchantKey  = "INVALID_MERCHANT_KEY"
	CodeAccountNotVerified  = "ACCOUNT_NOT_VERIFIED"
	CodeMerchantSuspended   = "MERCHANT_SUSPENDED"
	CodeDomainNotAllowed    = "DOMAIN_NOT_ALLOWED"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeSessionCompleted    = "SESSION_ALREADY_COMPLETED"
	CodeSessionProcessing   = "SESSION_PROCESSING"
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeProcessingFailed    = "PROCESSING_FAILED"
	CodeWebhookFailed       = "WEBHOOK_FAILED"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
)

// ErrorBody is the error object nested inside the widget envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// WriteError writes a widget-envelope error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Success: false,
		Error:   ErrorBody{Code: code, Message: message},
	})
}

// WriteSuccess writes a widget-envelope success response.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data})
}

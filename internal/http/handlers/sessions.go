// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stylemirror/tryon-api/internal/domains"
	"github.com/stylemirror/tryon-api/internal/http/mw"
	"github.com/stylemirror/tryon-api/internal/models"
	"github.com/stylemirror/tryon-api/internal/quota"
	"github.com/stylemirror/tryon-api/internal/service"
)

// WidgetHandler serves the widget-facing session endpoints. These are
// plain chi handlers because embedded scripts depend on the exact
// success/error envelope and the rate-limit headers set by middleware.
type WidgetHandler struct {
	sessions *service.SessionService
	logger   *slog.Logger
}

// NewWidgetHandler creates the widget handler.
func NewWidgetHandler(sessions *service.SessionService, logger *slog.Logger) *WidgetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WidgetHandler{sessions: sessions, logger: logger.With("component", "widget_http")}
}

type createSessionRequest struct {
	ProductImage    string  `json:"product_image"`
	ProductName     string  `json:"product_name"`
	ProductID       string  `json:"product_id"`
	ProductCategory string  `json:"product_category"`
	ProductPrice    float64 `json:"product_price"`
	ProductCurrency string  `json:"product_currency"`
	ProductURL      string  `json:"product_url"`
	ExternalUserID  string  `json:"external_user_id"`
}

// CreateSession opens a new try-on session.
func (h *WidgetHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	account := mw.GetAccount(r.Context())

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeValidationError, "Request body must be valid JSON")
		return
	}

	session, err := h.sessions.Create(r.Context(), account, service.CreateSessionInput{
		ProductImage:    req.ProductImage,
		ProductName:     req.ProductName,
		ProductID:       req.ProductID,
		ProductCategory: req.ProductCategory,
		ProductPrice:    req.ProductPrice,
		ProductCurrency: req.ProductCurrency,
		ProductURL:      req.ProductURL,
		ExternalUserID:  req.ExternalUserID,
	}, service.Provenance{
		OriginDomain: originDomain(r),
		UserAgent:    r.UserAgent(),
		IPAddress:    r.RemoteAddr,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, session)
}

// GetSession returns the current session state, for result polling.
func (h *WidgetHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	account := mw.GetAccount(r.Context())

	session, err := h.sessions.Get(r.Context(), account, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, session)
}

type submitTryOnRequest struct {
	UserImage      string `json:"user_image"`
	ExternalUserID string `json:"external_user_id"`
}

// SubmitTryOn accepts the shopper photo and starts generation.
func (h *WidgetHandler) SubmitTryOn(w http.ResponseWriter, r *http.Request) {
	account := mw.GetAccount(r.Context())

	var req submitTryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeValidationError, "Request body must be valid JSON")
		return
	}

	session, err := h.sessions.SubmitTryOn(r.Context(), account, chi.URLParam(r, "id"), service.SubmitTryOnInput{
		UserImage:      req.UserImage,
		ExternalUserID: req.ExternalUserID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, http.StatusAccepted, session)
}

// CancelSession marks a pending session expired.
func (h *WidgetHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	account := mw.GetAccount(r.Context())

	session, err := h.sessions.Cancel(r.Context(), account, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, session)
}

type widgetConfig struct {
	TestMode       bool             `json:"test_mode"`
	Authenticated  bool             `json:"authenticated"`
	QuotaRemaining *int             `json:"quota_remaining,omitempty"`
	Plan           models.Plan      `json:"plan,omitempty"`
	Quota          *quota.Effective `json:"quota,omitempty"`
}

// GetConfig returns widget bootstrap configuration. Works anonymously;
// a key personalizes the response with quota state.
func (h *WidgetHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := widgetConfig{}
	if account := mw.GetAccount(r.Context()); account != nil {
		info := mw.GetKeyInfo(r.Context())
		eff := quota.EffectiveQuota(account)
		remaining := eff.Limit - eff.Used
		if remaining < 0 {
			remaining = 0
		}
		cfg.Authenticated = true
		cfg.TestMode = info.TestMode
		cfg.Plan = account.Plan
		cfg.Quota = &eff
		cfg.QuotaRemaining = &remaining
	}
	WriteSuccess(w, http.StatusOK, cfg)
}

func (h *WidgetHandler) writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		WriteError(w, svcErr.Status, svcErr.Code, svcErr.Message)
		return
	}
	h.logger.Error("request failed", "error", err)
	WriteError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}

func originDomain(r *http.Request) string {
	raw := r.Header.Get("Origin")
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	return domains.ExtractDomain(raw)
}

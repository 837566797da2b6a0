package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/stylemirror/tryon-api/internal/config"
	"github.com/stylemirror/tryon-api/internal/models"
	"github.com/stylemirror/tryon-api/internal/repository"
	"github.com/stylemirror/tryon-api/internal/service"
)

// StripeWebhookHandler syncs subscription changes from Stripe onto
// account plans and quota modes.
type StripeWebhookHandler struct {
	cfg      *config.Config
	accounts repository.AccountRepository
	svc      *service.AccountService
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates the Stripe webhook handler.
func NewStripeWebhookHandler(cfg *config.Config, accounts repository.AccountRepository, svc *service.AccountService, logger *slog.Logger) *StripeWebhookHandler {
	stripe.Key = cfg.StripeSecretKey
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{cfg: cfg, accounts: accounts, svc: svc, logger: logger.With("component", "stripe")}
}

// HandleWebhook processes incoming Stripe webhooks. This is a raw HTTP
// handler because signature verification needs the exact body bytes.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.cfg.StripeWebhookSecret)
	if err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
	}
	// 200 either way; plan sync failures are resolved internally rather
	// than through Stripe's retry loop.
	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	h.logger.Info("received Stripe webhook", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return h.handleSubscriptionChange(ctx, event)
	case "customer.subscription.deleted":
		return h.handleSubscriptionCanceled(ctx, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

func (h *StripeWebhookHandler) handleSubscriptionChange(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	account, err := h.accountForCustomer(ctx, &sub)
	if err != nil || account == nil {
		return err
	}

	plan := planFromSubscription(&sub)
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		h.logger.Info("subscription inactive, keeping current plan",
			"account_id", account.ID, "status", sub.Status)
		return nil
	}
	return h.svc.ApplyPlan(ctx, account.ID, plan)
}

func (h *StripeWebhookHandler) handleSubscriptionCanceled(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	account, err := h.accountForCustomer(ctx, &sub)
	if err != nil || account == nil {
		return err
	}
	return h.svc.ApplyPlan(ctx, account.ID, models.PlanFree)
}

func (h *StripeWebhookHandler) accountForCustomer(ctx context.Context, sub *stripe.Subscription) (*models.Account, error) {
	if sub.Customer == nil {
		return nil, nil
	}
	account, err := h.accounts.GetByStripeCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		h.logger.Warn("subscription for unknown customer", "customer", sub.Customer.ID)
	}
	return account, nil
}

// planFromSubscription maps the subscription's price metadata onto a
// plan, defaulting to starter when unlabeled.
func planFromSubscription(sub *stripe.Subscription) models.Plan {
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if p, ok := item.Price.Metadata["plan"]; ok {
				switch models.Plan(p) {
				case models.PlanStarter, models.PlanGrowth, models.PlanEnterprise:
					return models.Plan(p)
				}
			}
		}
	}
	return models.PlanStarter
}

// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements the Stripe webhook. The route is public because Stripe
// calls it directly; requests are authenticated by signature verification.
//
// Routes:
//   - POST /webhooks/stripe -> HandleStripeWebhook
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/coachly/coachly/internal/billing"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/service"
)

// WebhookHandler turns Stripe subscription events into tier overrides.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are public; Stripe authenticates with the signature header.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
//
// Store failures answer 500 so Stripe retries; events that cannot be matched
// to a user answer 200 since retrying would not help.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(ctx, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case domain.ErrorCode(err) == domain.EINTERNAL:
		h.logger.Error("failed to process webhook event", "type", event.Type, "id", event.ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	default:
		h.logger.Warn("webhook event not applied", "type", event.Type, "id", event.ID, "error", err)
		w.WriteHeader(http.StatusOK)
	}
}

// handleCheckoutCompleted applies the plan recorded on the session. The
// session's client reference links a customer created outside our checkout
// endpoint to the user who started it.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return nil
	}

	plan := session.Metadata[billing.PlanMetadataKey]
	if session.Customer == nil || plan == "" {
		h.logger.Warn("checkout session missing customer or plan", "session_id", session.ID)
		return nil
	}
	customerID := session.Customer.ID

	err := h.subscriptions.ApplyPlanForCustomer(ctx, customerID, plan)
	if domain.ErrorCode(err) != domain.ENOTFOUND {
		return err
	}

	userID, parseErr := uuid.Parse(session.ClientReferenceID)
	if parseErr != nil {
		return err
	}
	if err := h.subscriptions.LinkCustomer(ctx, userID, customerID); err != nil {
		return err
	}
	h.logger.Info("linked stripe customer from checkout", "user_id", userID, "customer_id", customerID)
	return h.subscriptions.ApplyPlanForCustomer(ctx, customerID, plan)
}

// handleSubscriptionChanged maps the subscription's price to a plan. Lapsed
// subscriptions fall back to freemium; prices we do not sell are ignored.
func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return nil
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return nil
	}

	plan := ""
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			plan = h.billing.PlanForPriceID(sub.Items.Data[0].Price.ID)
		}
		if plan == "" {
			h.logger.Warn("subscription price is not a known plan", "subscription_id", sub.ID)
			return nil
		}
	case stripe.SubscriptionStatusIncomplete:
		// Payment not confirmed yet; a later update carries the outcome.
		return nil
	}

	if err := h.subscriptions.ApplyPlanForCustomer(ctx, sub.Customer.ID, plan); err != nil {
		return err
	}
	h.logger.Info("subscription event processed",
		"customer_id", sub.Customer.ID,
		"status", sub.Status,
		"tier", domain.MapTierFromPlan(plan),
	)
	return nil
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return nil
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return nil
	}

	// An empty plan code maps to freemium.
	if err := h.subscriptions.ApplyPlanForCustomer(ctx, sub.Customer.ID, ""); err != nil {
		return err
	}
	h.logger.Info("subscription deleted", "customer_id", sub.Customer.ID, "subscription_id", sub.ID)
	return nil
}

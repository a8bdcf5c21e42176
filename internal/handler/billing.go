// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements Stripe checkout and customer portal handlers.
//
// Routes:
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> OpenPortal
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/coachly/coachly/internal/billing"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/service"
)

// BillingHandler starts Stripe checkout and portal sessions. Tier changes are
// applied by the webhook, never here.
type BillingHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	baseURL       string
	logger        *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, subscriptions service.SubscriptionService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
}

// CheckoutRequest is the body of POST /api/billing/checkout.
type CheckoutRequest struct {
	Plan string `json:"plan"`
}

// RedirectResponse carries a Stripe-hosted URL for the client to open.
type RedirectResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// CreateCheckout creates a Stripe Checkout session for a plan code.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "billing.checkout"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	if h.billing == nil {
		h.logger.Warn("checkout attempted but Stripe is not configured")
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not available"))
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Plan != billing.PlanPremium && req.Plan != billing.PlanSmartPremium {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "plan must be premium or smart-premium"))
		return
	}

	// Ensure the user has a Stripe customer
	customerID := user.StripeCustomerID
	if customerID == "" {
		var err error
		customerID, err = h.billing.CreateCustomer(user.Email, user.FullName)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create billing customer"))
			return
		}
		if err := h.subscriptions.LinkCustomer(r.Context(), user.ID, customerID); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		h.logger.Info("created stripe customer", "user_id", user.ID, "customer_id", customerID)
	}

	url, err := h.billing.CreateCheckoutSession(billing.CheckoutParams{
		CustomerID: customerID,
		UserID:     user.ID.String(),
		Plan:       req.Plan,
		SuccessURL: h.baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.baseURL + "/billing/canceled",
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create checkout session"))
		return
	}

	h.logger.Info("checkout session created", "user_id", user.ID, "plan", req.Plan)
	JSON(w, http.StatusOK, RedirectResponse{Success: true, URL: url})
}

// OpenPortal creates a Stripe Customer Portal session.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "billing.portal"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not available"))
		return
	}
	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account yet"))
		return
	}

	url, err := h.billing.CreatePortalSession(user.StripeCustomerID, h.baseURL+"/billing")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create portal session"))
		return
	}
	JSON(w, http.StatusOK, RedirectResponse{Success: true, URL: url})
}

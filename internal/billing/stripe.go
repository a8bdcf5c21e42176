// Package billing provides Stripe billing integration for subscription plans.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Plan codes sold through Stripe. They are the codes domain.MapTierFromPlan
// understands.
const (
	PlanPremium      = "premium"
	PlanSmartPremium = "smart-premium"
)

// PlanMetadataKey is the checkout session metadata key carrying the plan code.
const PlanMetadataKey = "plan"

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session subscribing the
	// customer to plan. Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(params CheckoutParams) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan code sold at priceID, or "" if unknown.
	PlanForPriceID(priceID string) string
}

// CheckoutParams describes a subscription checkout.
type CheckoutParams struct {
	CustomerID string
	UserID     string // stored as the session's client reference
	Plan       string
	SuccessURL string
	CancelURL  string
}

// PriceConfig holds the Stripe price IDs for each plan.
type PriceConfig struct {
	PremiumPriceID      string
	SmartPremiumPriceID string
}

// PriceForPlan returns the price ID selling plan.
func (p PriceConfig) PriceForPlan(plan string) (string, bool) {
	var id string
	switch plan {
	case PlanPremium:
		id = p.PremiumPriceID
	case PlanSmartPremium:
		id = p.SmartPremiumPriceID
	}
	return id, id != ""
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        PriceConfig
	priceToPlan   map[string]string
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToPlan := make(map[string]string)
	if prices.PremiumPriceID != "" {
		priceToPlan[prices.PremiumPriceID] = PlanPremium
	}
	if prices.SmartPremiumPriceID != "" {
		priceToPlan[prices.SmartPremiumPriceID] = PlanSmartPremium
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToPlan:   priceToPlan,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(p CheckoutParams) (string, error) {
	priceID, ok := s.prices.PriceForPlan(p.Plan)
	if !ok {
		return "", fmt.Errorf("stripe create checkout session: no price for plan %q", p.Plan)
	}

	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(p.CustomerID),
		ClientReferenceID: stripe.String(p.UserID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.AddMetadata(PlanMetadataKey, p.Plan)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) string {
	return s.priceToPlan[priceID]
}

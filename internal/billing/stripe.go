// Package billing provides Stripe billing integration for plan management.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"

	"contracts-backend/internal/usage"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for
	// subscribing. Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and
	// returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan name for a Stripe price ID, or "".
	PlanForPriceID(priceID string) string

	// PriceIDForPlan returns the Stripe price ID for a plan name, or "".
	PriceIDForPlan(plan string) string
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	StarterMonthlyPriceID      string
	StarterYearlyPriceID       string
	ProfessionalMonthlyPriceID string
	ProfessionalYearlyPriceID  string
}

type stripeService struct {
	webhookSecret string
	priceToPlan   map[string]string
	planToPrice   map[string]string
}

// NewStripeService creates a new Stripe billing service. The secretKey
// authenticates API calls; the webhookSecret verifies incoming webhooks.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToPlan := make(map[string]string)
	planToPrice := make(map[string]string)
	for priceID, plan := range map[string]string{
		prices.StarterMonthlyPriceID:      usage.PlanStarter,
		prices.StarterYearlyPriceID:       usage.PlanStarter,
		prices.ProfessionalMonthlyPriceID: usage.PlanProfessional,
		prices.ProfessionalYearlyPriceID:  usage.PlanProfessional,
	} {
		if priceID != "" {
			priceToPlan[priceID] = plan
		}
	}
	// Checkout defaults to monthly billing.
	if prices.StarterMonthlyPriceID != "" {
		planToPrice[usage.PlanStarter] = prices.StarterMonthlyPriceID
	}
	if prices.ProfessionalMonthlyPriceID != "" {
		planToPrice[usage.PlanProfessional] = prices.ProfessionalMonthlyPriceID
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		priceToPlan:   priceToPlan,
		planToPrice:   planToPrice,
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

func (s *stripeService) CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
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

func (s *stripeService) PriceIDForPlan(plan string) string {
	return s.planToPrice[plan]
}

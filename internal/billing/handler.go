package billing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"

	"contracts-backend/internal/shared/server/middleware"
	"contracts-backend/internal/shared/server/respond"
	"contracts-backend/internal/shared/telemetry"
	"contracts-backend/internal/usage"
	"contracts-backend/internal/users"
)

// Handler exposes checkout, portal, and the Stripe webhook. The webhook
// route is public; authentication is the Stripe signature.
type Handler struct {
	Billing Service
	Users   users.Repo
	Usage   *usage.Service

	SuccessURL string
	CancelURL  string
	ReturnURL  string
}

func NewHandler(billing Service, userRepo users.Repo, usageSvc *usage.Service, successURL, cancelURL, returnURL string) *Handler {
	return &Handler{
		Billing:    billing,
		Users:      userRepo,
		Usage:      usageSvc,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		ReturnURL:  returnURL,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/billing/checkout", h.checkout)
	rg.POST("/billing/portal", h.portal)
	rg.POST("/billing/webhook", h.webhook)
}

func (h *Handler) checkout(c *gin.Context) {
	if h.Billing == nil {
		respond.Error(c, http.StatusNotImplemented, "billing_not_configured", "billing is not configured", nil)
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	priceID := h.Billing.PriceIDForPlan(req.Plan)
	if priceID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown plan", gin.H{"plan": req.Plan})
		return
	}

	customerID, err := h.customerFor(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to resolve billing customer", nil)
		return
	}

	url, err := h.Billing.CreateCheckoutSession(customerID, priceID, h.SuccessURL, h.CancelURL)
	if err != nil {
		telemetry.Error("billing.checkout_failed", map[string]any{"error": err.Error()})
		respond.Error(c, http.StatusBadGateway, "billing_failed", "failed to create checkout session", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"url": url})
}

func (h *Handler) portal(c *gin.Context) {
	if h.Billing == nil {
		respond.Error(c, http.StatusNotImplemented, "billing_not_configured", "billing is not configured", nil)
		return
	}

	user, err := h.Users.GetByID(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil || user.StripeCustomerID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "no billing account for user", nil)
		return
	}

	url, err := h.Billing.CreatePortalSession(user.StripeCustomerID, h.ReturnURL)
	if err != nil {
		telemetry.Error("billing.portal_failed", map[string]any{"error": err.Error()})
		respond.Error(c, http.StatusBadGateway, "billing_failed", "failed to create portal session", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"url": url})
}

// customerFor returns the user's Stripe customer id, creating one on the
// first billing touch.
func (h *Handler) customerFor(ctx context.Context, userID string) (string, error) {
	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	customerID, err := h.Billing.CreateCustomer(user.Email, user.Name)
	if err != nil {
		return "", err
	}
	if err := h.Users.SetStripeCustomer(ctx, userID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

func (h *Handler) webhook(c *gin.Context) {
	if h.Billing == nil {
		c.Status(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 65536))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "failed to read body", nil)
		return
	}

	event, err := h.Billing.VerifyWebhookSignature(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		telemetry.Error("billing.webhook_bad_signature", map[string]any{"error": err.Error()})
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid signature", nil)
		return
	}

	telemetry.Info("billing.webhook_received", map[string]any{"type": string(event.Type), "id": event.ID})

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionEvent(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	default:
		// Ack everything else; Stripe retries on non-2xx.
	}

	c.Status(http.StatusOK)
}

func (h *Handler) handleSubscriptionEvent(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		telemetry.Error("billing.webhook_parse_failed", map[string]any{"error": err.Error()})
		return
	}
	if sub.Customer == nil {
		return
	}

	plan := ""
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		plan = h.Billing.PlanForPriceID(sub.Items.Data[0].Price.ID)
	}
	if plan == "" {
		telemetry.Error("billing.webhook_unknown_price", map[string]any{"subscription_id": sub.ID})
		return
	}

	// Downgrades take effect when the subscription lapses, not here.
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		return
	}

	h.applyPlan(sub.Customer.ID, plan)
}

func (h *Handler) handleSubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		telemetry.Error("billing.webhook_parse_failed", map[string]any{"error": err.Error()})
		return
	}
	if sub.Customer == nil {
		return
	}
	h.applyPlan(sub.Customer.ID, usage.PlanFree)
}

// applyPlan updates the user row and the usage quota together. Webhooks
// are async Stripe events with no user request context.
func (h *Handler) applyPlan(customerID, plan string) {
	ctx := context.Background()

	user, err := h.Users.GetByStripeCustomer(ctx, customerID)
	if err != nil {
		telemetry.Error("billing.webhook_user_not_found", map[string]any{"customer_id": customerID})
		return
	}
	if err := h.Users.SetPlan(ctx, user.ID, plan); err != nil {
		telemetry.Error("billing.set_plan_failed", map[string]any{"user_id": user.ID, "error": err.Error()})
		return
	}
	if h.Usage != nil {
		if _, err := h.Usage.SetPlan(ctx, user.ID, plan); err != nil {
			telemetry.Error("billing.set_quota_failed", map[string]any{"user_id": user.ID, "error": err.Error()})
			return
		}
	}
	telemetry.Info("billing.plan_updated", map[string]any{"user_id": user.ID, "plan": plan})
}

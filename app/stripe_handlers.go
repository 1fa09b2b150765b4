package app

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"
)

// CreateCheckoutSession starts a Stripe Checkout Session for the
// authenticated user.
func CreateCheckoutSession(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), id.UserID)
	if err != nil {
		log.Printf("ensureStripeCustomer failed for user=%s: %v", id.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	priceID := cfg.Stripe.PriceIDProMonthly
	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if priceID == "" || frontendURL == "" {
		log.Printf("missing Stripe config: price_id=%t frontend_url=%t", priceID != "", frontendURL != "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(stripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/billing/success"),
		CancelURL:  stripe.String(frontendURL + "/billing/cancel"),
	}

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// CreatePortalSession creates a Stripe Customer Portal session for the
// authenticated user.
func CreatePortalSession(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var user models.User
	if err := db.WithContext(c.Request.Context()).First(&user, "id = ?", id.UserID).Error; err != nil {
		log.Printf("portal lookup failed user=%s err=%v", id.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if user.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(user.StripeCustomerID),
		ReturnURL: stripe.String(frontendURL + "/settings/billing"),
	}

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("stripe portal session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// subscriptionChange is the effect a billing event has on the account row.
type subscriptionChange struct {
	Status       models.SubscriptionStatus
	MinutesLimit int
	Plan         models.Plan // empty means leave unchanged
	ResetUsage   bool
	NotifyFailed bool
}

// transitionForEvent maps a billing event to the account state change.
// ACTIVE carries the 600-minute limit, every other status falls back to 60;
// unlimited (-1) is never applied by webhook processing. The second return
// is false for event types this handler ignores.
func transitionForEvent(eventType string, cancelAtPeriodEnd bool) (subscriptionChange, bool) {
	switch eventType {
	case "checkout.session.completed":
		return subscriptionChange{
			Status:       models.SubscriptionActive,
			MinutesLimit: 600,
			Plan:         models.PlanPro,
		}, true
	case "invoice.payment_succeeded":
		// The sole mechanism by which monthly usage resets.
		return subscriptionChange{
			Status:       models.SubscriptionActive,
			MinutesLimit: 600,
			ResetUsage:   true,
		}, true
	case "invoice.payment_failed":
		return subscriptionChange{
			Status:       models.SubscriptionPastDue,
			MinutesLimit: 60,
			NotifyFailed: true,
		}, true
	case "customer.subscription.updated":
		if cancelAtPeriodEnd {
			return subscriptionChange{
				Status:       models.SubscriptionCanceled,
				MinutesLimit: 60,
			}, true
		}
		return subscriptionChange{
			Status:       models.SubscriptionActive,
			MinutesLimit: 600,
		}, true
	case "customer.subscription.deleted":
		return subscriptionChange{
			Status:       models.SubscriptionFree,
			MinutesLimit: 60,
			Plan:         models.PlanFree,
		}, true
	default:
		return subscriptionChange{}, false
	}
}

// StripeWebhook receives billing lifecycle events. Signature failures are
// rejected with 400 before anything is persisted. Each event ID is recorded
// in the webhook_events ledger so a redelivery of an already-processed event
// is acknowledged without re-applying side effects. Processing failures are
// stored on the event row and answered with 500 so Stripe retries.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	endpointSecret := cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ctx := c.Request.Context()

	var record models.WebhookEvent
	err = db.WithContext(ctx).Where("stripe_event_id = ?", event.ID).First(&record).Error
	switch {
	case err == nil:
		if record.Processed {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		record = models.WebhookEvent{
			StripeEventID: event.ID,
			Type:          string(event.Type),
		}
		if err := db.WithContext(ctx).Create(&record).Error; err != nil {
			log.Printf("stripe webhook ledger insert failed event=%s: %v", event.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
			return
		}
	default:
		log.Printf("stripe webhook ledger lookup failed event=%s: %v", event.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	if err := processBillingEvent(c, &event); err != nil {
		log.Printf("stripe webhook processing failed event=%s type=%s: %v", event.ID, event.Type, err)
		db.WithContext(ctx).Model(&record).Update("error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	if err := db.WithContext(ctx).Model(&record).Updates(map[string]any{
		"processed": true,
		"error":     "",
	}).Error; err != nil {
		log.Printf("stripe webhook mark-processed failed event=%s: %v", event.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func processBillingEvent(c *gin.Context, event *stripe.Event) error {
	customerID, cancelAtPeriodEnd, periodEnd, err := extractEventDetails(event)
	if err != nil {
		return err
	}

	change, handled := transitionForEvent(string(event.Type), cancelAtPeriodEnd)
	if !handled {
		// Intentionally ignore unhandled events.
		return nil
	}
	if customerID == "" {
		return errors.New("event missing customer id")
	}

	ctx := c.Request.Context()

	var user models.User
	if err := db.WithContext(ctx).First(&user, "stripe_customer_id = ?", customerID).Error; err != nil {
		return err
	}

	updates := map[string]any{
		"subscription_status": change.Status,
		"minutes_limit":       change.MinutesLimit,
	}
	if change.Plan != "" {
		updates["plan"] = change.Plan
	}
	if change.ResetUsage {
		updates["minutes_used"] = 0
		updates["last_reset"] = time.Now()
	}
	if periodEnd != nil {
		updates["current_period_end"] = *periodEnd
	}

	if err := db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(updates).Error; err != nil {
		return err
	}

	if change.NotifyFailed {
		sendMailAsync(user.Email, "Payment failed",
			"We could not process your last payment. Please update your payment method to keep your subscription active.")
	}

	return nil
}

// extractEventDetails pulls the customer reference and, where present, the
// cancel flag and period end out of the event payload.
func extractEventDetails(event *stripe.Event) (customerID string, cancelAtPeriodEnd bool, periodEnd *time.Time, err error) {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return
		}
		if sess.Customer != nil {
			customerID = sess.Customer.ID
		}
	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err = json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return
		}
		if inv.Customer != nil {
			customerID = inv.Customer.ID
		}
	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return
		}
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		cancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0)
			periodEnd = &t
		}
	}
	return
}

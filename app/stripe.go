package app

import (
	"context"
	"errors"

	"github.com/plutaslab-hq/darkmode-ai-server/app/config"
	"github.com/plutaslab-hq/darkmode-ai-server/app/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
)

// InitStripe wires the Stripe API key from config.
func InitStripe(c *config.Config) {
	stripe.Key = c.Stripe.SecretKey
}

// ensureStripeCustomer finds or creates a Stripe Customer for the given user.
// It uses users.stripe_customer_id when present, otherwise creates a new
// customer with metadata user_id = <id>, then stores that on the user row.
func ensureStripeCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	if db == nil {
		return "", errors.New("db not initialized")
	}

	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return "", err
	}
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	err = db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("stripe_customer_id", cust.ID).Error
	if err != nil {
		return "", err
	}

	return cust.ID, nil
}

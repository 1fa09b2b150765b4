package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent is the idempotency ledger for billing webhooks, keyed by the
// provider's event ID. A redelivered event finds its processed row and is
// acknowledged without re-applying side effects.
type WebhookEvent struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	StripeEventID string    `json:"stripe_event_id" gorm:"uniqueIndex;not null"`
	Type          string    `json:"type" gorm:"index"`
	Processed     bool      `json:"processed"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

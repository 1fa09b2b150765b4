// Package models defines the persisted entities for accounts, sessions,
// documents, usage and billing state.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

type SubscriptionStatus string

const (
	SubscriptionFree     SubscriptionStatus = "FREE"
	SubscriptionTrial    SubscriptionStatus = "TRIAL"
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
)

// User is the account row. MinutesUsed only ever grows within a billing
// period; the single reset path is a successful payment webhook.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name"`

	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:varchar(20);default:'FREE'"`
	Plan               Plan               `json:"plan" gorm:"type:varchar(20);default:'free'"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	StripeCustomerID   string             `json:"-" gorm:"index"`

	MinutesUsed  int        `json:"minutes_used"`
	MinutesLimit int        `json:"minutes_limit" gorm:"default:60"`
	LastReset    *time.Time `json:"last_reset,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sessions      []Session      `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Documents     []Document     `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	UsageLogs     []UsageLog     `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	RefreshTokens []RefreshToken `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Analytics     *UserAnalytics `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

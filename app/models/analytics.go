package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserAnalytics is the one-to-one aggregate row per user. It is mutated only
// by session completion and the streak calculator.
type UserAnalytics struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`

	TotalSessions        int `json:"total_sessions"`
	TotalDurationSeconds int `json:"total_duration_seconds"`
	TotalQuestions       int `json:"total_questions"`
	TotalResponses       int `json:"total_responses"`

	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *UserAnalytics) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
)

// Session is one interview/meeting run. It is created ACTIVE and transitions
// to COMPLETED exactly once, at which point duration is derived and usage is
// credited to the owning user.
type Session struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Profile  string    `json:"profile"`
	Language string    `json:"language" gorm:"default:'en'"`

	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	DurationMinutes int        `json:"duration_minutes"`

	QuestionsAsked int `json:"questions_asked"`
	ResponsesGiven int `json:"responses_given"`

	Status SessionStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE';index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type UsageType string

const (
	UsageSession            UsageType = "SESSION"
	UsageTranscription      UsageType = "TRANSCRIPTION"
	UsageAIResponse         UsageType = "AI_RESPONSE"
	UsageScreenshotAnalysis UsageType = "SCREENSHOT_ANALYSIS"
)

// UsageLog is an append-only record of a billable event.
type UsageLog struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	SessionID *uuid.UUID `json:"session_id,omitempty" gorm:"type:uuid;index"`
	Type      UsageType  `json:"type" gorm:"type:varchar(32);not null"`
	Minutes   int        `json:"minutes"`
	CreatedAt time.Time  `json:"created_at"`
}

func (l *UsageLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Usage accounting: plan-limit gates at creation time and crediting at
// session completion.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/config"
	"github.com/plutaslab-hq/darkmode-ai-server/app/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ceilMinutes converts a whole-second duration to billable minutes, rounding
// up so a 61-second session costs 2 minutes.
func ceilMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

// checkSessionAllowance is the pure gate applied before a new session is
// created. Limits of -1 are unlimited. Minutes are checked here only; a
// running session may still push usage over the cap, that overshoot is
// accepted.
func checkSessionAllowance(limits config.PlanLimits, sessionsToday int64, user models.User) error {
	if limits.DailySessions >= 0 && sessionsToday >= int64(limits.DailySessions) {
		return errTooManyRequests("daily session limit reached")
	}
	if user.MinutesLimit >= 0 && user.MinutesUsed >= user.MinutesLimit {
		return errTooManyRequests("monthly minutes limit reached")
	}
	return nil
}

// checkDocumentAllowance gates document uploads against the plan's cap.
func checkDocumentAllowance(limits config.PlanLimits, documentCount int64) error {
	if limits.MaxDocuments >= 0 && documentCount >= int64(limits.MaxDocuments) {
		return errTooManyRequests("document limit reached")
	}
	return nil
}

// sessionsStartedToday counts a user's sessions created since local midnight.
func sessionsStartedToday(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND created_at >= ?", userID, dayStart(now)).
		Count(&count).Error
	return count, err
}

// allowSessionStart runs the creation-time gate for a user. The count and the
// later insert are not transactionally coupled; two racing requests near the
// cap can both pass.
func allowSessionStart(ctx context.Context, user models.User, now time.Time) error {
	count, err := sessionsStartedToday(ctx, user.ID, now)
	if err != nil {
		return err
	}
	return checkSessionAllowance(cfg.Plans.Limits(user.Plan), count, user)
}

// completeSession transitions an ACTIVE session to COMPLETED, derives its
// duration, credits minutes to the account, appends the usage log entry and
// updates the analytics aggregate including the streak. Only ACTIVE sessions
// are eligible, so a second completion call cannot double-credit.
func completeSession(ctx context.Context, userID, sessionID uuid.UUID, now time.Time) (*models.Session, error) {
	var sess models.Session

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNotFound("session not found")
			}
			return err
		}
		if sess.Status != models.SessionActive {
			return errConflict("session already completed")
		}

		endedAt := now
		durationSeconds := int(endedAt.Sub(sess.StartedAt).Seconds())
		if durationSeconds < 0 {
			durationSeconds = 0
		}
		durationMinutes := ceilMinutes(durationSeconds)

		sess.EndedAt = &endedAt
		sess.DurationSeconds = durationSeconds
		sess.DurationMinutes = durationMinutes
		sess.Status = models.SessionCompleted
		if err := tx.Save(&sess).Error; err != nil {
			return err
		}

		// Credited even when this pushes usage past the limit; the cap is
		// enforced at session creation, not at completion.
		if err := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("minutes_used", gorm.Expr("minutes_used + ?", durationMinutes)).Error; err != nil {
			return err
		}

		logEntry := models.UsageLog{
			UserID:    userID,
			SessionID: &sess.ID,
			Type:      models.UsageSession,
			Minutes:   durationMinutes,
		}
		if err := tx.Create(&logEntry).Error; err != nil {
			return err
		}

		return creditAnalytics(tx, userID, &sess, now)
	})
	if err != nil {
		return nil, err
	}

	return &sess, nil
}

// recordSessionEvent appends a non-minute usage log entry (transcription,
// AI response, screenshot analysis) and bumps the session counters.
func recordSessionEvent(ctx context.Context, userID, sessionID uuid.UUID, usageType models.UsageType) (*models.Session, error) {
	var sess models.Session

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNotFound("session not found")
			}
			return err
		}
		if sess.Status != models.SessionActive {
			return errConflict("session is not active")
		}

		switch usageType {
		case models.UsageTranscription:
			sess.QuestionsAsked++
		case models.UsageAIResponse, models.UsageScreenshotAnalysis:
			sess.ResponsesGiven++
		}
		if err := tx.Save(&sess).Error; err != nil {
			return err
		}

		logEntry := models.UsageLog{
			UserID:    userID,
			SessionID: &sess.ID,
			Type:      usageType,
		}
		return tx.Create(&logEntry).Error
	})
	if err != nil {
		return nil, err
	}

	return &sess, nil
}

// creditAnalytics folds a completed session into the one-to-one aggregate
// row, creating it if the account predates analytics tracking.
func creditAnalytics(tx *gorm.DB, userID uuid.UUID, sess *models.Session, now time.Time) error {
	var a models.UserAnalytics
	if err := tx.Where("user_id = ?", userID).First(&a).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		a = models.UserAnalytics{UserID: userID}
	}

	a.TotalSessions++
	a.TotalDurationSeconds += sess.DurationSeconds
	a.TotalQuestions += sess.QuestionsAsked
	a.TotalResponses += sess.ResponsesGiven
	applyStreakUpdate(&a, now)

	return tx.Save(&a).Error
}

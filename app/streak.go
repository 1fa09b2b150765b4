// Streak calculator: consecutive calendar days with at least one completed
// session, using server-local midnight boundaries.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// dayStart truncates to local midnight.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// nextStreak returns the streak value after activity at now. Same-day repeat
// activity leaves the streak unchanged; activity the day after the last
// active day extends it; anything else (gap of 2+ days, or first-ever
// activity) starts over at 1.
func nextStreak(current int, lastActive *time.Time, now time.Time) int {
	if lastActive == nil {
		return 1
	}
	today := dayStart(now)
	last := dayStart(*lastActive)
	switch {
	case last.Equal(today):
		return current
	case last.Equal(today.AddDate(0, 0, -1)):
		return current + 1
	default:
		return 1
	}
}

// streakExpired reports whether an untouched streak has lapsed: the last
// active day is before yesterday.
func streakExpired(lastActive *time.Time, now time.Time) bool {
	if lastActive == nil {
		return false
	}
	yesterday := dayStart(now).AddDate(0, 0, -1)
	return dayStart(*lastActive).Before(yesterday)
}

// applyStreakUpdate mutates the aggregate for activity at now. Invoked once
// per completed session; only the first completion of a day advances the
// streak.
func applyStreakUpdate(a *models.UserAnalytics, now time.Time) {
	a.CurrentStreak = nextStreak(a.CurrentStreak, a.LastActiveDate, now)
	if a.CurrentStreak > a.LongestStreak {
		a.LongestStreak = a.CurrentStreak
	}
	active := dayStart(now)
	a.LastActiveDate = &active
}

// refreshStreak is the side-effecting read used when analytics are served:
// a lapsed streak is reset to 0 and persisted before being returned.
func refreshStreak(ctx context.Context, userID uuid.UUID, now time.Time) (*models.UserAnalytics, error) {
	var a models.UserAnalytics
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			a = models.UserAnalytics{UserID: userID}
			if err := db.WithContext(ctx).Create(&a).Error; err != nil {
				return nil, err
			}
			return &a, nil
		}
		return nil, err
	}

	if a.CurrentStreak > 0 && streakExpired(a.LastActiveDate, now) {
		a.CurrentStreak = 0
		if err := db.WithContext(ctx).Model(&a).Update("current_streak", 0).Error; err != nil {
			return nil, err
		}
	}

	return &a, nil
}

package app

import (
	"testing"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
)

var noon = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.Local)

func TestNextStreak(t *testing.T) {
	yesterday := noon.AddDate(0, 0, -1)
	threeDaysAgo := noon.AddDate(0, 0, -3)

	t.Run("first ever activity", func(t *testing.T) {
		if got := nextStreak(0, nil, noon); got != 1 {
			t.Fatalf("nextStreak first activity = %d, want 1", got)
		}
	})

	t.Run("same day is a no-op", func(t *testing.T) {
		earlier := noon.Add(-3 * time.Hour)
		if got := nextStreak(5, &earlier, noon); got != 5 {
			t.Fatalf("nextStreak same day = %d, want 5", got)
		}
	})

	t.Run("consecutive day increments", func(t *testing.T) {
		if got := nextStreak(5, &yesterday, noon); got != 6 {
			t.Fatalf("nextStreak consecutive = %d, want 6", got)
		}
	})

	t.Run("gap resets to one regardless of prior length", func(t *testing.T) {
		if got := nextStreak(250, &threeDaysAgo, noon); got != 1 {
			t.Fatalf("nextStreak after gap = %d, want 1", got)
		}
	})

	t.Run("late night to early morning counts as consecutive", func(t *testing.T) {
		lateYesterday := time.Date(2025, time.March, 9, 23, 59, 0, 0, time.Local)
		earlyToday := time.Date(2025, time.March, 10, 0, 5, 0, 0, time.Local)
		if got := nextStreak(2, &lateYesterday, earlyToday); got != 3 {
			t.Fatalf("nextStreak across midnight = %d, want 3", got)
		}
	})
}

func TestStreakExpired(t *testing.T) {
	yesterday := noon.AddDate(0, 0, -1)
	twoDaysAgo := noon.AddDate(0, 0, -2)

	if streakExpired(nil, noon) {
		t.Fatalf("no activity should not count as expired")
	}
	if streakExpired(&noon, noon) {
		t.Fatalf("today should not be expired")
	}
	if streakExpired(&yesterday, noon) {
		t.Fatalf("yesterday should not be expired")
	}
	if !streakExpired(&twoDaysAgo, noon) {
		t.Fatalf("two days ago should be expired")
	}
}

func TestApplyStreakUpdate(t *testing.T) {
	t.Run("tracks longest", func(t *testing.T) {
		yesterday := dayStart(noon.AddDate(0, 0, -1))
		a := models.UserAnalytics{CurrentStreak: 7, LongestStreak: 7, LastActiveDate: &yesterday}

		applyStreakUpdate(&a, noon)
		if a.CurrentStreak != 8 || a.LongestStreak != 8 {
			t.Fatalf("after update streak=%d longest=%d, want 8/8", a.CurrentStreak, a.LongestStreak)
		}
	})

	t.Run("longest survives a reset", func(t *testing.T) {
		old := dayStart(noon.AddDate(0, 0, -10))
		a := models.UserAnalytics{CurrentStreak: 9, LongestStreak: 9, LastActiveDate: &old}

		applyStreakUpdate(&a, noon)
		if a.CurrentStreak != 1 || a.LongestStreak != 9 {
			t.Fatalf("after reset streak=%d longest=%d, want 1/9", a.CurrentStreak, a.LongestStreak)
		}
	})

	t.Run("second update same day leaves streak unchanged", func(t *testing.T) {
		yesterday := dayStart(noon.AddDate(0, 0, -1))
		a := models.UserAnalytics{CurrentStreak: 3, LongestStreak: 4, LastActiveDate: &yesterday}

		applyStreakUpdate(&a, noon)
		first := a.CurrentStreak
		applyStreakUpdate(&a, noon.Add(2*time.Hour))
		if a.CurrentStreak != first {
			t.Fatalf("same-day second update changed streak: %d -> %d", first, a.CurrentStreak)
		}
		if a.CurrentStreak != 4 {
			t.Fatalf("expected streak 4, got %d", a.CurrentStreak)
		}
	})
}

// Analytics endpoints: aggregate totals, streak and per-day stats.
package app

import (
	"net/http"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-gonic/gin"
)

// GetAnalytics returns the aggregate row. Reading is side-effecting: a
// lapsed streak is reset to 0 before it is returned.
func GetAnalytics(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	a, err := refreshStreak(c.Request.Context(), id.UserID, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"analytics": a})
}

type dailyStat struct {
	Day      time.Time `json:"day"`
	Sessions int       `json:"sessions"`
	Minutes  int       `json:"minutes"`
}

// GetDailyAnalytics returns per-day completed-session counts and minutes for
// the last N days (default 7, max 90).
func GetDailyAnalytics(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	days := 7
	if q := c.Query("days"); q != "" {
		if v, err := parsePositiveInt(q); err == nil && v > 0 && v <= 90 {
			days = v
		}
	}

	since := dayStart(time.Now()).AddDate(0, 0, -(days - 1))

	var stats []dailyStat
	err := db.WithContext(c.Request.Context()).Raw(`
		SELECT
			date_trunc('day', ended_at) AS day,
			COUNT(*)                    AS sessions,
			COALESCE(SUM(duration_minutes), 0) AS minutes
		FROM sessions
		WHERE user_id = ?
		  AND status = ?
		  AND ended_at >= ?
		GROUP BY day
		ORDER BY day;
	`, id.UserID, "COMPLETED", since).Scan(&stats).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":  days,
		"stats": stats,
	})
}

// Profile endpoints for the authenticated account.
package app

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Me returns the account row plus the effective plan limits and remaining
// minutes for the current billing period.
func Me(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var user models.User
	if err := db.WithContext(c.Request.Context()).First(&user, "id = ?", id.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, errNotFound("user not found"))
			return
		}
		respondError(c, err)
		return
	}

	limits := cfg.Plans.Limits(user.Plan)

	var remaining any = nil
	if user.MinutesLimit >= 0 {
		r := user.MinutesLimit - user.MinutesUsed
		if r < 0 {
			r = 0
		}
		remaining = r
	}

	c.JSON(http.StatusOK, gin.H{
		"user":              user,
		"minutes_remaining": remaining,
		"limits": gin.H{
			"minutes":        limits.MinutesLimit,
			"daily_sessions": limits.DailySessions,
			"max_documents":  limits.MaxDocuments,
		},
	})
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

// UpdateMe updates mutable profile fields.
func UpdateMe(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
		return
	}

	if err := db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id.UserID).
		Update("name", name).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteMe deletes the account. Owned rows go with it via the cascade
// constraints; stored document bytes are removed best-effort first.
func DeleteMe(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	ctx := c.Request.Context()

	var docs []models.Document
	if err := db.WithContext(ctx).Where("user_id = ?", id.UserID).Find(&docs).Error; err == nil {
		for _, d := range docs {
			if err := store.Delete(ctx, d.StorageKey); err != nil {
				log.Printf("storage delete failed key=%s err=%v", d.StorageKey, err)
			}
		}
	}

	if err := db.WithContext(ctx).Delete(&models.User{}, "id = ?", id.UserID).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Interview session lifecycle endpoints.
package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type createSessionRequest struct {
	Profile  string `json:"profile"`
	Language string `json:"language"`
}

// CreateSession starts a new ACTIVE session after the usage gate passes.
func CreateSession(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()

	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", id.UserID).Error; err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	if err := allowSessionStart(ctx, user, now); err != nil {
		respondError(c, err)
		return
	}

	language := req.Language
	if language == "" {
		language = "en"
	}
	sess := models.Session{
		UserID:    user.ID,
		Profile:   req.Profile,
		Language:  language,
		StartedAt: now,
		Status:    models.SessionActive,
	}
	if err := db.WithContext(ctx).Create(&sess).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

// ListSessions returns the user's most recent sessions.
func ListSessions(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	limit := 20
	if q := c.Query("limit"); q != "" {
		if v, err := parsePositiveInt(q); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	var sessions []models.Session
	if err := db.WithContext(c.Request.Context()).
		Where("user_id = ?", id.UserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// GetSession returns one session, scoped to the requesting user.
func GetSession(c *gin.Context) {
	id, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	var sess models.Session
	err := db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", sessionID, id.UserID).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, errNotFound("session not found"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// CompleteSession ends an ACTIVE session and credits its usage.
func CompleteSession(c *gin.Context) {
	id, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	sess, err := completeSession(c.Request.Context(), id.UserID, sessionID, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess})
}

type sessionEventRequest struct {
	Type models.UsageType `json:"type" binding:"required"`
}

// RecordSessionEvent appends a transcription / AI response / screenshot
// analysis event to an ACTIVE session.
func RecordSessionEvent(c *gin.Context) {
	id, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	var req sessionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
		return
	}

	switch req.Type {
	case models.UsageTranscription, models.UsageAIResponse, models.UsageScreenshotAnalysis:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}

	sess, err := recordSessionEvent(c.Request.Context(), id.UserID, sessionID, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// sessionScope pulls the identity and the :id path param, writing the error
// response itself when either is missing.
func sessionScope(c *gin.Context) (*auth.Identity, uuid.UUID, bool) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return nil, uuid.Nil, false
	}

	return id, sessionID, true
}

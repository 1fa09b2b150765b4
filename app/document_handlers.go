// Document upload and retrieval against the configured storage backend.
package app

import (
	"errors"
	"log"
	"net/http"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxUploadBytes = 10 << 20 // 10 MiB

// UploadDocument stores a multipart file after the plan's document-count
// gate passes.
func UploadDocument(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	ctx := c.Request.Context()

	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", id.UserID).Error; err != nil {
		respondError(c, err)
		return
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.Document{}).
		Where("user_id = ?", id.UserID).
		Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := checkDocumentAllowance(cfg.Plans.Limits(user.Plan), count); err != nil {
		respondError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	name := sanitizeFilename(fileHeader.Filename)
	key := uuid.NewString() + "-" + name
	contentType := fileHeader.Header.Get("Content-Type")

	if err := store.Save(ctx, key, f, contentType); err != nil {
		respondError(c, err)
		return
	}

	doc := models.Document{
		UserID:      id.UserID,
		Name:        name,
		StorageKey:  key,
		Size:        fileHeader.Size,
		ContentType: contentType,
	}
	if err := db.WithContext(ctx).Create(&doc).Error; err != nil {
		if derr := store.Delete(ctx, key); derr != nil {
			log.Printf("storage cleanup failed key=%s err=%v", key, derr)
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

// ListDocuments returns the user's document metadata.
func ListDocuments(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var docs []models.Document
	if err := db.WithContext(c.Request.Context()).
		Where("user_id = ?", id.UserID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(docs),
		"documents": docs,
	})
}

// DownloadDocument streams the stored bytes back.
func DownloadDocument(c *gin.Context) {
	doc, ok := loadOwnedDocument(c)
	if !ok {
		return
	}

	r, err := store.Open(c.Request.Context(), doc.StorageKey)
	if err != nil {
		respondError(c, err)
		return
	}
	defer r.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Name+`"`)
	c.DataFromReader(http.StatusOK, doc.Size, contentType, r, nil)
}

// DeleteDocument removes the row and, best-effort, the stored bytes.
func DeleteDocument(c *gin.Context) {
	doc, ok := loadOwnedDocument(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := db.WithContext(ctx).Delete(&models.Document{}, "id = ?", doc.ID).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := store.Delete(ctx, doc.StorageKey); err != nil {
		log.Printf("storage delete failed key=%s err=%v", doc.StorageKey, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func loadOwnedDocument(c *gin.Context) (*models.Document, bool) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return nil, false
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return nil, false
	}

	var doc models.Document
	err = db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", docID, id.UserID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, errNotFound("document not found"))
			return nil, false
		}
		respondError(c, err)
		return nil, false
	}

	return &doc, true
}

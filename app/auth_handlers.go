// Registration, login and refresh-token rotation.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register creates a new account on the free plan and returns a token pair.
func Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and a password of at least 8 characters are required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, err)
		return
	}

	freeLimits := cfg.Plans.Limits(models.PlanFree)
	user := models.User{
		Email:              email,
		PasswordHash:       string(hash),
		Name:               strings.TrimSpace(req.Name),
		SubscriptionStatus: models.SubscriptionFree,
		Plan:               models.PlanFree,
		MinutesLimit:       freeLimits.MinutesLimit,
	}

	err = db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		if err := tx.Where("email = ?", email).First(&existing).Error; err == nil {
			return errConflict("an account with this email already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&models.UserAnalytics{UserID: user.ID}).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}

	pair, err := issueTokenPair(c.Request.Context(), &user)
	if err != nil {
		respondError(c, err)
		return
	}

	sendMailAsync(user.Email, "Welcome to Darkmode",
		"Your account is ready. Start your first interview session whenever you are.")

	c.JSON(http.StatusCreated, gin.H{"user": user, "tokens": pair})
}

// Login verifies credentials and returns a fresh token pair.
func Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, errUnauthorized("invalid email or password"))
			return
		}
		respondError(c, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(c, errUnauthorized("invalid email or password"))
		return
	}

	pair, err := issueTokenPair(c.Request.Context(), &user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": pair})
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed: it is deleted whether the exchange succeeds or the token turns
// out to be expired.
func Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	ctx := c.Request.Context()

	var stored models.RefreshToken
	if err := db.WithContext(ctx).Where("token = ?", req.RefreshToken).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, errUnauthorized("invalid refresh token"))
			return
		}
		respondError(c, err)
		return
	}

	if time.Now().After(stored.ExpiresAt) {
		db.WithContext(ctx).Delete(&stored)
		respondError(c, errUnauthorized("refresh token expired"))
		return
	}

	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", stored.UserID).Error; err != nil {
		respondError(c, err)
		return
	}

	// rotation: single use
	if err := db.WithContext(ctx).Delete(&stored).Error; err != nil {
		respondError(c, err)
		return
	}

	pair, err := issueTokenPair(ctx, &user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

// Logout deletes the presented refresh token. Access tokens stay valid until
// natural expiry.
func Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	db.WithContext(c.Request.Context()).
		Where("token = ?", req.RefreshToken).
		Delete(&models.RefreshToken{})

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LogoutAll deletes every refresh token for the authenticated user.
func LogoutAll(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	if err := db.WithContext(c.Request.Context()).
		Where("user_id = ?", id.UserID).
		Delete(&models.RefreshToken{}).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword emails a reset link. It answers 200 whether or not the
// email is known, to avoid account enumeration.
func ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err == nil {
		if token, err := tokens.IssuePasswordResetToken(user.ID, user.Email); err == nil {
			link := strings.TrimRight(cfg.Stripe.FrontendURL, "/") + "/reset-password?token=" + token
			sendMailAsync(user.Email, "Reset your password",
				"Use the link below within one hour to choose a new password:\n\n"+link)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// ResetPassword sets a new password from a valid reset token and revokes all
// refresh tokens for the account.
func ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and a password of at least 8 characters are required"})
		return
	}

	id, err := tokens.VerifyPasswordResetToken(req.Token)
	if err != nil {
		respondError(c, errUnauthorized("invalid or expired reset token"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", id.UserID).
			Update("password_hash", string(hash)).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", id.UserID).Delete(&models.RefreshToken{}).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// issueTokenPair signs an access token and persists a new single-use refresh
// token for the user.
func issueTokenPair(ctx context.Context, user *models.User) (*tokenPair, error) {
	access, err := tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	value, err := auth.NewRefreshTokenValue()
	if err != nil {
		return nil, err
	}

	refresh := models.RefreshToken{
		UserID:    user.ID,
		Token:     value,
		ExpiresAt: time.Now().Add(cfg.JWT.RefreshTTL),
	}
	if err := db.WithContext(ctx).Create(&refresh).Error; err != nil {
		return nil, err
	}

	return &tokenPair{AccessToken: access, RefreshToken: value}, nil
}

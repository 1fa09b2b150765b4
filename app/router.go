package app

import (
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda
// execution. MustInit must have run first.
func NewRouter() *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.POST("/api/stripe/webhook", StripeWebhook)

	router.POST("/api/auth/register", Register)
	router.POST("/api/auth/login", Login)
	router.POST("/api/auth/refresh", Refresh)
	router.POST("/api/auth/logout", Logout)
	router.POST("/api/auth/forgot-password", ForgotPassword)
	router.POST("/api/auth/reset-password", ResetPassword)

	protected := router.Group("/api")
	protected.Use(auth.Middleware(tokens))

	protected.POST("/auth/logout-all", LogoutAll)

	protected.GET("/me", Me)
	protected.PUT("/me", UpdateMe)
	protected.DELETE("/me", DeleteMe)

	protected.POST("/sessions", CreateSession)
	protected.GET("/sessions", ListSessions)
	protected.GET("/sessions/:id", GetSession)
	protected.POST("/sessions/:id/complete", CompleteSession)
	protected.POST("/sessions/:id/events", RecordSessionEvent)

	protected.POST("/documents", UploadDocument)
	protected.GET("/documents", ListDocuments)
	protected.GET("/documents/:id", DownloadDocument)
	protected.DELETE("/documents/:id", DeleteDocument)

	protected.GET("/analytics", GetAnalytics)
	protected.GET("/analytics/daily", GetDailyAnalytics)

	protected.POST("/billing/create-checkout-session", CreateCheckoutSession)
	protected.POST("/billing/portal-session", CreatePortalSession)

	return router
}

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status": "ok",
	})
}

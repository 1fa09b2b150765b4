// End-to-end handler tests against a real PostgreSQL database. They connect
// to TEST_DATABASE_DSN (or local development defaults) and skip when no
// database is reachable.
package app

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/config"
	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type recordMailer struct {
	mu   sync.Mutex
	sent []string // "to|subject"
}

func (m *recordMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+subject)
	return nil
}

func (m *recordMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// waitForCount polls for asynchronous sends; sendMailAsync fires goroutines.
func (m *recordMailer) waitForCount(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.count() >= want {
			if m.count() > want {
				t.Fatalf("expected %d mails, got %d", want, m.count())
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d mails, got %d after waiting", want, m.count())
}

// setupTestApp wires the package globals against a scratch database and
// returns the router plus the mail recorder.
func setupTestApp(t *testing.T) (*gin.Engine, *recordMailer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=darkmode_test port=5432 sslmode=disable"
	}

	d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Skipf("test database not reachable: %v", err)
	}
	if err := d.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("auto-migrate failed: %v", err)
	}
	for _, table := range []string{
		"webhook_events", "usage_logs", "documents", "refresh_tokens",
		"user_analytics", "sessions", "users",
	} {
		d.Exec("TRUNCATE TABLE " + table + " CASCADE")
	}

	prevDB, prevCfg, prevTokens, prevStore, prevMail := db, cfg, tokens, store, mail
	t.Cleanup(func() {
		db, cfg, tokens, store, mail = prevDB, prevCfg, prevTokens, prevStore, prevMail
	})

	db = d
	cfg = &config.Config{
		Env: "test",
		JWT: config.JWTConfig{
			Secret:     "flow-test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Stripe: config.StripeConfig{
			WebhookSecret: testWebhookSecret,
			FrontendURL:   "http://localhost:3000",
		},
		Plans: config.DefaultPlans(),
	}
	tokens, err = auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	if err != nil {
		t.Fatalf("issuer init failed: %v", err)
	}
	ls, err := newLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage init failed: %v", err)
	}
	store = ls
	recorder := &recordMailer{}
	mail = recorder

	return NewRouter(), recorder
}

func createTestUser(t *testing.T, email string, mutate func(*models.User)) *models.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	user := &models.User{
		Email:              email,
		PasswordHash:       string(hash),
		Name:               "Test User",
		SubscriptionStatus: models.SubscriptionFree,
		Plan:               models.PlanFree,
		MinutesLimit:       60,
	}
	if mutate != nil {
		mutate(user)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if err := db.Create(&models.UserAnalytics{UserID: user.ID}).Error; err != nil {
		t.Fatalf("create analytics failed: %v", err)
	}
	return user
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func accessTokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestAuthFlow(t *testing.T) {
	router, _ := setupTestApp(t)

	register := map[string]string{
		"email":    "alice@example.test",
		"password": "supersecret",
		"name":     "Alice",
	}

	resp := doJSON(t, router, http.MethodPost, "/api/auth/register", "", register)
	if resp.Code != http.StatusCreated {
		t.Fatalf("register = %d body=%s", resp.Code, resp.Body.String())
	}

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		resp := doJSON(t, router, http.MethodPost, "/api/auth/register", "", register)
		if resp.Code != http.StatusConflict {
			t.Fatalf("duplicate register = %d, want 409", resp.Code)
		}
	})

	t.Run("wrong password unauthorized", func(t *testing.T) {
		resp := doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "alice@example.test", "password": "wrong-password",
		})
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("bad login = %d, want 401", resp.Code)
		}
	})

	resp = doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.test", "password": "supersecret",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login = %d body=%s", resp.Code, resp.Body.String())
	}
	var loginBody struct {
		Tokens tokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &loginBody); err != nil {
		t.Fatalf("login body: %v", err)
	}

	t.Run("refresh rotates and consumes the token", func(t *testing.T) {
		resp := doJSON(t, router, http.MethodPost, "/api/auth/refresh", "", map[string]string{
			"refresh_token": loginBody.Tokens.RefreshToken,
		})
		if resp.Code != http.StatusOK {
			t.Fatalf("refresh = %d body=%s", resp.Code, resp.Body.String())
		}

		// the consumed value must be rejected the second time
		resp = doJSON(t, router, http.MethodPost, "/api/auth/refresh", "", map[string]string{
			"refresh_token": loginBody.Tokens.RefreshToken,
		})
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("refresh reuse = %d, want 401", resp.Code)
		}
	})

	t.Run("expired refresh token is rejected and deleted", func(t *testing.T) {
		var user models.User
		if err := db.Where("email = ?", "alice@example.test").First(&user).Error; err != nil {
			t.Fatalf("load user: %v", err)
		}
		stale := models.RefreshToken{
			UserID:    user.ID,
			Token:     strings.Repeat("ab", 32),
			ExpiresAt: time.Now().Add(-time.Hour),
		}
		if err := db.Create(&stale).Error; err != nil {
			t.Fatalf("seed stale token: %v", err)
		}

		resp := doJSON(t, router, http.MethodPost, "/api/auth/refresh", "", map[string]string{
			"refresh_token": stale.Token,
		})
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expired refresh = %d, want 401", resp.Code)
		}
		var count int64
		db.Model(&models.RefreshToken{}).Where("token = ?", stale.Token).Count(&count)
		if count != 0 {
			t.Fatalf("expired token should be deleted on detection")
		}
	})

	t.Run("forgot password tolerant on unknown email", func(t *testing.T) {
		resp := doJSON(t, router, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{
			"email": "nobody@example.test",
		})
		if resp.Code != http.StatusOK {
			t.Fatalf("forgot password unknown email = %d, want 200", resp.Code)
		}
	})
}

func TestSessionCreationGate(t *testing.T) {
	router, _ := setupTestApp(t)
	user := createTestUser(t, "gate@example.test", nil)
	token := accessTokenFor(t, user)

	for i := 0; i < 3; i++ {
		resp := doJSON(t, router, http.MethodPost, "/api/sessions", token, map[string]string{
			"profile": "backend-engineer",
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("session %d = %d body=%s", i+1, resp.Code, resp.Body.String())
		}
	}

	resp := doJSON(t, router, http.MethodPost, "/api/sessions", token, map[string]string{
		"profile": "backend-engineer",
	})
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth session = %d, want 429", resp.Code)
	}

	t.Run("minutes cap blocks even under daily cap", func(t *testing.T) {
		exhausted := createTestUser(t, "exhausted@example.test", func(u *models.User) {
			u.MinutesUsed = 60
		})
		resp := doJSON(t, router, http.MethodPost, "/api/sessions", accessTokenFor(t, exhausted), map[string]string{
			"profile": "backend-engineer",
		})
		if resp.Code != http.StatusTooManyRequests {
			t.Fatalf("exhausted minutes = %d, want 429", resp.Code)
		}
	})
}

func TestSessionCompletionCreditsUsage(t *testing.T) {
	router, _ := setupTestApp(t)
	user := createTestUser(t, "credit@example.test", nil)
	token := accessTokenFor(t, user)

	sess := models.Session{
		UserID:         user.ID,
		Profile:        "backend-engineer",
		Language:       "en",
		StartedAt:      time.Now().Add(-125 * time.Second),
		Status:         models.SessionActive,
		QuestionsAsked: 4,
		ResponsesGiven: 4,
	}
	if err := db.Create(&sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	resp := doJSON(t, router, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/complete", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("complete = %d body=%s", resp.Code, resp.Body.String())
	}

	var done models.Session
	db.First(&done, "id = ?", sess.ID)
	if done.Status != models.SessionCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}
	if done.DurationSeconds != 125 || done.DurationMinutes != 3 {
		t.Fatalf("duration = %ds/%dm, want 125s/3m", done.DurationSeconds, done.DurationMinutes)
	}

	var reloaded models.User
	db.First(&reloaded, "id = ?", user.ID)
	if reloaded.MinutesUsed != 3 {
		t.Fatalf("minutes used = %d, want 3", reloaded.MinutesUsed)
	}

	var logs []models.UsageLog
	db.Where("user_id = ?", user.ID).Find(&logs)
	if len(logs) != 1 || logs[0].Type != models.UsageSession || logs[0].Minutes != 3 {
		t.Fatalf("usage logs = %+v, want one SESSION entry of 3 minutes", logs)
	}

	var a models.UserAnalytics
	db.Where("user_id = ?", user.ID).First(&a)
	if a.TotalSessions != 1 || a.TotalDurationSeconds != 125 {
		t.Fatalf("analytics totals = %d sessions / %ds", a.TotalSessions, a.TotalDurationSeconds)
	}
	if a.CurrentStreak != 1 || a.LongestStreak != 1 {
		t.Fatalf("streak = %d/%d, want 1/1", a.CurrentStreak, a.LongestStreak)
	}

	t.Run("second completion rejected", func(t *testing.T) {
		resp := doJSON(t, router, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/complete", token, nil)
		if resp.Code != http.StatusConflict {
			t.Fatalf("double complete = %d, want 409", resp.Code)
		}
		var reloaded models.User
		db.First(&reloaded, "id = ?", user.ID)
		if reloaded.MinutesUsed != 3 {
			t.Fatalf("double complete re-credited usage: %d minutes", reloaded.MinutesUsed)
		}
	})
}

func stripeSignature(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func deliverWebhook(t *testing.T, router *gin.Engine, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeSignature([]byte(payload)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestWebhookLifecycle(t *testing.T) {
	router, mails := setupTestApp(t)
	user := createTestUser(t, "billing@example.test", func(u *models.User) {
		u.StripeCustomerID = "cus_test_1"
		u.SubscriptionStatus = models.SubscriptionActive
		u.Plan = models.PlanPro
		u.MinutesLimit = 600
		u.MinutesUsed = 42
	})

	failedPayload := `{"id":"evt_fail_1","type":"invoice.payment_failed","data":{"object":{"customer":"cus_test_1"}}}`

	resp := deliverWebhook(t, router, failedPayload)
	if resp.Code != http.StatusOK {
		t.Fatalf("payment_failed = %d body=%s", resp.Code, resp.Body.String())
	}

	var reloaded models.User
	db.First(&reloaded, "id = ?", user.ID)
	if reloaded.SubscriptionStatus != models.SubscriptionPastDue || reloaded.MinutesLimit != 60 {
		t.Fatalf("after payment_failed status=%s limit=%d, want PAST_DUE/60",
			reloaded.SubscriptionStatus, reloaded.MinutesLimit)
	}
	mails.waitForCount(t, 1)

	t.Run("redelivery is idempotent", func(t *testing.T) {
		resp := deliverWebhook(t, router, failedPayload)
		if resp.Code != http.StatusOK {
			t.Fatalf("redelivery = %d, want 200", resp.Code)
		}
		time.Sleep(100 * time.Millisecond)
		if mails.count() != 1 {
			t.Fatalf("redelivery sent a second email (%d total)", mails.count())
		}
	})

	t.Run("payment succeeded resets usage", func(t *testing.T) {
		payload := `{"id":"evt_ok_1","type":"invoice.payment_succeeded","data":{"object":{"customer":"cus_test_1"}}}`
		resp := deliverWebhook(t, router, payload)
		if resp.Code != http.StatusOK {
			t.Fatalf("payment_succeeded = %d body=%s", resp.Code, resp.Body.String())
		}

		var reloaded models.User
		db.First(&reloaded, "id = ?", user.ID)
		if reloaded.SubscriptionStatus != models.SubscriptionActive || reloaded.MinutesLimit != 600 {
			t.Fatalf("after payment_succeeded status=%s limit=%d", reloaded.SubscriptionStatus, reloaded.MinutesLimit)
		}
		if reloaded.MinutesUsed != 0 || reloaded.LastReset == nil {
			t.Fatalf("usage not reset: used=%d lastReset=%v", reloaded.MinutesUsed, reloaded.LastReset)
		}
	})

	t.Run("subscription deleted returns to free", func(t *testing.T) {
		payload := `{"id":"evt_del_1","type":"customer.subscription.deleted","data":{"object":{"customer":"cus_test_1","cancel_at_period_end":false}}}`
		resp := deliverWebhook(t, router, payload)
		if resp.Code != http.StatusOK {
			t.Fatalf("subscription.deleted = %d body=%s", resp.Code, resp.Body.String())
		}

		var reloaded models.User
		db.First(&reloaded, "id = ?", user.ID)
		if reloaded.SubscriptionStatus != models.SubscriptionFree || reloaded.Plan != models.PlanFree {
			t.Fatalf("after deletion status=%s plan=%s", reloaded.SubscriptionStatus, reloaded.Plan)
		}
	})

	t.Run("unknown customer fails processing for retry", func(t *testing.T) {
		payload := `{"id":"evt_ghost_1","type":"invoice.payment_failed","data":{"object":{"customer":"cus_ghost"}}}`
		resp := deliverWebhook(t, router, payload)
		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("unknown customer = %d, want 500", resp.Code)
		}

		var record models.WebhookEvent
		if err := db.Where("stripe_event_id = ?", "evt_ghost_1").First(&record).Error; err != nil {
			t.Fatalf("event record missing: %v", err)
		}
		if record.Processed || record.Error == "" {
			t.Fatalf("failed event should stay unprocessed with an error recorded: %+v", record)
		}
	})
}

func TestSessionEventRecording(t *testing.T) {
	router, _ := setupTestApp(t)
	user := createTestUser(t, "events@example.test", nil)
	token := accessTokenFor(t, user)

	sess := models.Session{
		UserID:    user.ID,
		StartedAt: time.Now(),
		Status:    models.SessionActive,
	}
	if err := db.Create(&sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	for _, eventType := range []models.UsageType{
		models.UsageTranscription,
		models.UsageAIResponse,
		models.UsageScreenshotAnalysis,
	} {
		resp := doJSON(t, router, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/events", token,
			map[string]string{"type": string(eventType)})
		if resp.Code != http.StatusOK {
			t.Fatalf("event %s = %d body=%s", eventType, resp.Code, resp.Body.String())
		}
	}

	var reloaded models.Session
	db.First(&reloaded, "id = ?", sess.ID)
	if reloaded.QuestionsAsked != 1 || reloaded.ResponsesGiven != 2 {
		t.Fatalf("counters = %d questions / %d responses", reloaded.QuestionsAsked, reloaded.ResponsesGiven)
	}

	var count int64
	db.Model(&models.UsageLog{}).Where("session_id = ?", sess.ID).Count(&count)
	if count != 3 {
		t.Fatalf("usage log entries = %d, want 3", count)
	}

	t.Run("unknown type rejected", func(t *testing.T) {
		resp := doJSON(t, router, http.MethodPost, "/api/sessions/"+sess.ID.String()+"/events", token,
			map[string]string{"type": "COFFEE_BREAK"})
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("unknown type = %d, want 400", resp.Code)
		}
	})
}

func TestAnalyticsStreakReset(t *testing.T) {
	router, _ := setupTestApp(t)
	user := createTestUser(t, "streak@example.test", nil)
	token := accessTokenFor(t, user)

	threeDaysAgo := dayStart(time.Now()).AddDate(0, 0, -3)
	db.Model(&models.UserAnalytics{}).Where("user_id = ?", user.ID).Updates(map[string]any{
		"current_streak":   5,
		"longest_streak":   8,
		"last_active_date": threeDaysAgo,
	})

	resp := doJSON(t, router, http.MethodGet, "/api/analytics", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("analytics = %d body=%s", resp.Code, resp.Body.String())
	}

	var body struct {
		Analytics models.UserAnalytics `json:"analytics"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("analytics body: %v", err)
	}
	if body.Analytics.CurrentStreak != 0 {
		t.Fatalf("lapsed streak = %d, want 0", body.Analytics.CurrentStreak)
	}
	if body.Analytics.LongestStreak != 8 {
		t.Fatalf("longest streak = %d, want 8", body.Analytics.LongestStreak)
	}

	// the reset must be persisted, not just reported
	var a models.UserAnalytics
	db.Where("user_id = ?", user.ID).First(&a)
	if a.CurrentStreak != 0 {
		t.Fatalf("streak reset not persisted: %d", a.CurrentStreak)
	}
}

func TestRefreshTokenRotationKeepsUser(t *testing.T) {
	router, _ := setupTestApp(t)
	user := createTestUser(t, "rotate@example.test", nil)

	value, err := auth.NewRefreshTokenValue()
	if err != nil {
		t.Fatalf("refresh value: %v", err)
	}
	seed := models.RefreshToken{
		UserID:    user.ID,
		Token:     value,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed refresh: %v", err)
	}

	resp := doJSON(t, router, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": value,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("refresh = %d body=%s", resp.Code, resp.Body.String())
	}

	var rotated []models.RefreshToken
	db.Where("user_id = ?", user.ID).Find(&rotated)
	if len(rotated) != 1 {
		t.Fatalf("expected exactly one refresh token after rotation, got %d", len(rotated))
	}
	if rotated[0].Token == value {
		t.Fatalf("rotation should have replaced the token value")
	}
	if rotated[0].UserID != user.ID {
		t.Fatalf("rotated token belongs to %s, want %s", rotated[0].UserID, user.ID)
	}
}

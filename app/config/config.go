// Package config loads process configuration from the environment once at
// startup. The plan catalog is part of the config value so limit tables are
// immutable after load and passed explicitly to whoever needs them.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/plutaslab-hq/darkmode-ai-server/app/models"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Env     string
	Port    string
	DB      PostgresConfig
	JWT     JWTConfig
	Stripe  StripeConfig
	SMTP    SMTPConfig
	Storage StorageConfig
	Plans   PlanCatalog
}

type PostgresConfig struct {
	Username string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	PriceIDProMonthly string
	FrontendURL       string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type StorageConfig struct {
	Provider string // "local" or "s3"
	LocalDir string
	S3Bucket string
}

// PlanLimits defines a tier. -1 means unlimited.
type PlanLimits struct {
	MinutesLimit  int
	DailySessions int
	MaxDocuments  int
}

type PlanCatalog map[models.Plan]PlanLimits

// Limits returns the limits for a plan, falling back to the free tier for
// anything unrecognized.
func (c PlanCatalog) Limits(p models.Plan) PlanLimits {
	if l, ok := c[p]; ok {
		return l
	}
	return c[models.PlanFree]
}

// DefaultPlans is the shipped limit table.
func DefaultPlans() PlanCatalog {
	return PlanCatalog{
		models.PlanFree:       {MinutesLimit: 60, DailySessions: 3, MaxDocuments: 5},
		models.PlanPro:        {MinutesLimit: 600, DailySessions: -1, MaxDocuments: 50},
		models.PlanEnterprise: {MinutesLimit: -1, DailySessions: -1, MaxDocuments: -1},
	}
}

func LoadConfig() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}

	cfg := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			Name:     getEnv("POSTGRES_DB", "darkmode"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     secret,
			AccessTTL:  time.Duration(getEnvInt("JWT_ACCESS_TTL_MINUTES", 15)) * time.Minute,
			RefreshTTL: time.Duration(getEnvInt("JWT_REFRESH_TTL_DAYS", 30)) * 24 * time.Hour,
		},
		Stripe: StripeConfig{
			SecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceIDProMonthly: os.Getenv("STRIPE_PRICE_ID_PRO_MONTHLY"),
			FrontendURL:       os.Getenv("FRONTEND_URL"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PWD"),
			From:     getEnv("SMTP_FROM", "no-reply@darkmode.ai"),
		},
		Storage: StorageConfig{
			Provider: getEnv("STORAGE_PROVIDER", "local"),
			LocalDir: getEnv("STORAGE_LOCAL_DIR", "./uploads"),
			S3Bucket: os.Getenv("STORAGE_S3_BUCKET"),
		},
		Plans: DefaultPlans(),
	}

	return cfg, nil
}

// IsProduction gates things like error detail in responses.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

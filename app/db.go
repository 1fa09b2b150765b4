package app

import (
	"fmt"
	"log"

	"github.com/plutaslab-hq/darkmode-ai-server/app/config"
	"github.com/plutaslab-hq/darkmode-ai-server/app/models"
	"github.com/plutaslab-hq/darkmode-ai-server/auth"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	db         *gorm.DB
	cfg        *config.Config
	tokens     *auth.Issuer
	store      Storage
	mail       Mailer
	production bool
)

// MustInit wires the package globals from a loaded config and panics/logs
// fatally on error. Called once from cmd before the router is built.
func MustInit(c *config.Config) {
	cfg = c
	production = c.IsProduction()

	d, err := openDB(c.DB)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	db = d
	log.Println("Connected to Postgres")

	iss, err := auth.NewIssuer(c.JWT.Secret, c.JWT.AccessTTL)
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}
	tokens = iss

	s, err := NewStorage(c.Storage)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	store = s

	mail = NewMailer(c.SMTP)

	InitStripe(c)
}

func openDB(pc config.PostgresConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		pc.Host, pc.Username, pc.Password, pc.Name, pc.Port, pc.SSLMode,
	)

	d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := d.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := d.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return d, nil
}

func allModels() []any {
	return []any{
		&models.User{},
		&models.Session{},
		&models.UsageLog{},
		&models.UserAnalytics{},
		&models.RefreshToken{},
		&models.Document{},
		&models.WebhookEvent{},
	}
}

package api

import (
	"log"
	"os"
	"strings"
	"time"

	"traceback/controllers"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
)

var server = controllers.Server{}

func init() {
	// Load .env only outside production. In prod, config comes from the
	// platform's environment.
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}
}

func Run() {
	// Local convenience: try loading .env again (no-op in prod).
	_ = godotenv.Load()

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: os.Getenv("APP_ENV"),
		}); err != nil {
			log.Printf("warning: sentry not initialized: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize DB. In prod, base.go will use DATABASE_URL; in dev, it will
	// use these pieces.
	server.Initialize(
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_NAME"),
	)
	defer server.StopRetentionCron()

	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("API_PORT")
		if port == "" {
			port = "8888"
		}
	}

	addr := ":" + strings.TrimSpace(port)
	log.Printf("Listening on %s", addr)
	server.Run(addr)
}

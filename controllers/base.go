package controllers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"traceback/cache"
	"traceback/middlewares"
	"traceback/models"
	"traceback/seed"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Server struct {
	DB     *gorm.DB
	Router *gin.Engine

	retentionCron *cron.Cron
}

// ===============================
// SERVER INITIALIZATION
// ===============================
func (server *Server) Initialize(DbUser, DbPassword, DbPort, DbHost, DbName string) {
	var dsn string

	if strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		dsn = os.Getenv("DATABASE_URL")
		if dsn != "" && !strings.Contains(dsn, "sslmode=") {
			if strings.Contains(dsn, "?") {
				dsn += "&sslmode=require"
			} else {
				dsn += "?sslmode=require"
			}
		}
	} else {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			DbHost, DbUser, DbPassword, DbName, DbPort,
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Cannot connect to Postgres: %v", err)
	}
	server.DB = db

	// Auto Migrations
	if err := server.DB.AutoMigrate(
		&models.InstallRecord{},
		&models.DynamicLink{},
		&models.APIKey{},
		&models.LinkAnalytics{},
	); err != nil {
		log.Fatalf("Error migrating database: %v", err)
	}

	// Redis init (safe failure)
	if err := cache.InitFromEnv(); err != nil {
		log.Printf("warning: could not connect to redis: %v", err)
	}

	if os.Getenv("SEED_SAMPLE_DATA") != "" {
		seed.Load(server.DB)
	}

	server.SetupRouter()
	server.StartRetentionCron()
}

// SetupRouter builds the gin engine and route table. Split out from
// Initialize so tests can run the full HTTP surface against their own DB.
func (server *Server) SetupRouter() {
	router := gin.Default()
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	if os.Getenv("SENTRY_DSN") != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(middlewares.CORSMiddleware())
	router.Use(middlewares.RateLimitMiddleware())

	server.Router = router
	server.initializeRoutes()
}

// StartRetentionCron schedules the periodic install-record sweep so cleanup
// does not depend on write volume alone.
func (server *Server) StartRetentionCron() {
	server.retentionCron = cron.New()
	if _, err := server.retentionCron.AddFunc("@every 5m", server.SweepOldInstalls); err != nil {
		log.Printf("warning: retention cron not scheduled: %v", err)
		return
	}
	server.retentionCron.Start()
}

func (server *Server) StopRetentionCron() {
	if server.retentionCron != nil {
		server.retentionCron.Stop()
	}
}

func (server *Server) Run(addr string) {
	log.Fatal(http.ListenAndServe(addr, server.Router))
}

// Package api wires together all HTTP routes for the CampusFace backend.
//
// Route grouping philosophy:
//   - /health, /ready, and /version are unauthenticated so that load
//     balancers and orchestrators can probe the process without credentials.
//   - /api/v1/auth/register and /api/v1/auth/login are public but rate
//     limited: they are the only way to obtain a token.
//   - /api/v1/images/ is registered only for the local image backend and is
//     unauthenticated. Display URLs for cloud backends are pre-signed by the
//     provider; the local route is their development stand-in and gate
//     displays fetch photos from it without carrying a token.
//   - Everything else under /api/v1 requires a bearer token. The code
//     generate/validate endpoints additionally carry a stricter per-caller
//     rate limit because a 6-digit value is guessable at volume.
package api

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/campusface/campusface/internal/api/accounts"
	"github.com/campusface/campusface/internal/api/changes"
	"github.com/campusface/campusface/internal/api/codes"
	"github.com/campusface/campusface/internal/api/entries"
	"github.com/campusface/campusface/internal/config"
	"github.com/campusface/campusface/internal/db/repositories"
	"github.com/campusface/campusface/internal/images"
	"github.com/campusface/campusface/internal/images/local"
	"github.com/campusface/campusface/internal/jobs"
	"github.com/campusface/campusface/internal/middleware"
	"github.com/campusface/campusface/internal/services"
	syncpkg "github.com/campusface/campusface/internal/sync"

	// Import image host backends to register them
	_ "github.com/campusface/campusface/internal/images/azure"
	_ "github.com/campusface/campusface/internal/images/gcs"
	_ "github.com/campusface/campusface/internal/images/s3"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	codeSweeper *jobs.CodeExpirySweeper
	publisher   syncpkg.Publisher
}

// Shutdown stops background goroutines and closes the event publisher. It
// should be called after the HTTP server has been shut down so that in-flight
// requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.codeSweeper != nil {
		bg.codeSweeper.Stop()
	}
	if bg.publisher != nil {
		if err := bg.publisher.Close(); err != nil {
			slog.Error("failed to close sync publisher", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize image host backend
	host, err := images.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize image host: %v", err)
	}
	log.Printf("Initialized image host: %s", cfg.Images.Backend)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	memberRepo := repositories.NewMemberRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	codeRepo := repositories.NewAuthCodeRepository(db)

	// Wrap *sql.DB with sqlx for the request repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	entryRepo := repositories.NewEntryRequestRepository(sqlxDB)
	changeRepo := repositories.NewChangeRequestRepository(sqlxDB)

	logger := slog.Default()

	// Directory sync publisher. Disabled deployments still get a publisher
	// so the services never branch on configuration.
	var publisher syncpkg.Publisher = syncpkg.NopPublisher{}
	if cfg.Sync.Enabled {
		publisher = syncpkg.NewKafkaPublisher(cfg.Sync.Brokers, cfg.Sync.Topic, logger)
		log.Printf("Directory sync publisher started (topic %s)", cfg.Sync.Topic)
	}

	// Initialize domain engines
	codeService := services.NewAuthCodeService(
		codeRepo, memberRepo, userRepo, host, logger,
		cfg.Codes.TTL, cfg.Images.SignedURLTTL,
	)
	entryService := services.NewEntryRequestService(
		db, entryRepo, memberRepo, orgRepo, userRepo, host, publisher, logger,
		cfg.Images.SignedURLTTL,
	)
	changeService := services.NewChangeRequestService(
		changeRepo, memberRepo, userRepo, host, publisher, logger,
		cfg.Images.SignedURLTTL,
	)

	// Initialize the code expiry sweeper
	var codeSweeper *jobs.CodeExpirySweeper
	if cfg.Codes.SweepEnabled {
		codeSweeper = jobs.NewCodeExpirySweeper(codeRepo, cfg.Codes.SweepInterval, logger)
		codeSweeper.Start(context.Background())
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes image host probe)
	router.GET("/ready", readinessHandler(db, host))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	accountHandlers := accounts.NewHandlers(userRepo, cfg.Auth.JWTExpiry)
	codeHandlers := codes.NewHandlers(codeService)
	entryHandlers := entries.NewHandlers(entryService)
	changeHandlers := changes.NewHandlers(changeService, cfg.Images.MaxUploadBytes)

	// Rate limiting middleware. The limiter is shared; each route group
	// applies its own per-minute budget against it.
	rl := cfg.Security.RateLimiting
	limitGeneral := func(c *gin.Context) { c.Next() }
	limitCodes := limitGeneral
	if rl.Enabled {
		limiter := middleware.NewRateLimiter(&cfg.Redis)
		limitGeneral = middleware.RateLimitMiddleware(limiter, rl.RequestsPerMinute, rl.Burst)
		limitCodes = middleware.RateLimitMiddleware(limiter, rl.CodeRequestsPerMinute, rl.CodeRequestsPerMinute)
	}

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints (no auth required, but rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(limitGeneral)
		{
			authGroup.POST("/register", accountHandlers.Register)
			authGroup.POST("/login", accountHandlers.Login)
		}

		// Local image serving. Cloud backends hand out provider-signed URLs
		// instead, so this route exists only for the local backend.
		if localHost, ok := host.(*local.LocalHost); ok {
			apiV1.GET("/images/*key", serveLocalImageHandler(localHost))
		}

		// Authenticated endpoints
		authenticated := apiV1.Group("")
		authenticated.Use(middleware.AuthMiddleware(userRepo))
		authenticated.Use(limitGeneral)
		{
			authenticated.GET("/auth/me", accountHandlers.Me)

			codesGroup := authenticated.Group("/codes")
			{
				// Stricter limit: generation and validation are the
				// brute-force surface of a 6-digit code space.
				codesGroup.POST("/generate", limitCodes, codeHandlers.Generate)
				codesGroup.POST("/validate", limitCodes, codeHandlers.Validate)

				codesGroup.GET("", codeHandlers.List)
				codesGroup.GET("/:id", codeHandlers.Get)
				codesGroup.PUT("/:id", codeHandlers.Update)
				codesGroup.DELETE("/:id", codeHandlers.Delete)
				codesGroup.POST("/:id/invalidate", codeHandlers.Invalidate)
			}

			entriesGroup := authenticated.Group("/entry-requests")
			{
				entriesGroup.POST("", entryHandlers.Create)
				entriesGroup.GET("/pending", entryHandlers.ListPending)
				entriesGroup.GET("/mine", entryHandlers.ListMine)
				entriesGroup.GET("/:id", entryHandlers.Get)
				entriesGroup.PUT("/:id", entryHandlers.Update)
				entriesGroup.DELETE("/:id", entryHandlers.Delete)
				entriesGroup.POST("/:id/approve", entryHandlers.Approve)
				entriesGroup.POST("/:id/reject", entryHandlers.Reject)
			}

			changesGroup := authenticated.Group("/change-requests")
			{
				changesGroup.POST("", changeHandlers.Create)
				changesGroup.GET("/pending", changeHandlers.ListPending)
				changesGroup.GET("/mine", changeHandlers.ListMine)
				changesGroup.GET("/:id", changeHandlers.Get)
				changesGroup.PUT("/:id", changeHandlers.Update)
				changesGroup.DELETE("/:id", changeHandlers.Delete)
				changesGroup.POST("/:id/review", changeHandlers.Review)
			}
		}
	}

	bg := &BackgroundServices{
		codeSweeper: codeSweeper,
		publisher:   publisher,
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and image host connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: dependency not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the image host so
// that a Kubernetes readiness gate fails when photo uploads would error.
func readinessHandler(db *sql.DB, host images.Host) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe the image host with a known-absent sentinel key. Exists()
		// exercises authentication and network connectivity without
		// creating any state.
		if _, err := host.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["images"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "image host not ready",
			})
			return
		}
		checks["images"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// @Summary      Serve a locally stored face photo
// @Description  Streams a photo from the local image host. Registered only when the local backend is active.
// @Tags         Images
// @Produce      image/jpeg
// @Success      200  {file}  binary
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/v1/images/{key} [get]
// serveLocalImageHandler streams photos stored by the local image backend.
// The key is validated against path traversal by the host itself.
func serveLocalImageHandler(host *local.LocalHost) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		path, err := host.Open(key)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}
		c.File(path)
	}
}

// LoggerMiddleware provides structured request logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.Any("request_id", requestID),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the
	// global handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

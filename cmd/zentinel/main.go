package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zentinel/zentinel/internal/config"
	"github.com/zentinel/zentinel/internal/database"
	"github.com/zentinel/zentinel/internal/handlers"
	"github.com/zentinel/zentinel/internal/jobs"
	"github.com/zentinel/zentinel/internal/middleware"
	"github.com/zentinel/zentinel/internal/services"
	slackutil "github.com/zentinel/zentinel/internal/slack"
	"github.com/zentinel/zentinel/internal/view"
	"github.com/zentinel/zentinel/internal/zabbix"
	"gorm.io/gorm/logger"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Zentinel...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	// Hash the admin password
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/login",
			"/auth/*",
			"/static/*",
		},
		LoginPath: "/login",
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	db, err := database.Open(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Zabbix client
	zbx, err := zabbix.NewClient(zabbix.Config{
		URL:        cfg.Zabbix.URL,
		Token:      cfg.Zabbix.Token,
		Username:   cfg.Zabbix.Username,
		Password:   cfg.Zabbix.Password,
		VerifySSL:  cfg.Zabbix.VerifySSL,
		Timeout:    cfg.Zabbix.Timeout,
		ProxyURL:   cfg.Zabbix.ProxyURL,
		LegacyAuth: cfg.Zabbix.LegacyAuth,
		RateLimit:  cfg.Zabbix.RateLimit,
		Burst:      cfg.Zabbix.Burst,
	}, log.New(os.Stderr, "Zabbix: ", log.LstdFlags))
	if err != nil {
		log.Fatalf("Failed to create Zabbix client: %v", err)
	}
	defer zbx.Close()
	log.Printf("Zabbix client initialized for %s", cfg.Zabbix.URL)

	frontendURL := cfg.Zabbix.FrontendURL
	if frontendURL == "" {
		frontendURL = zbx.FrontendURL()
	}

	// Initialize services
	filterService := services.NewFilterService(database.NewProfileStore(db), cfg.Dashboard.NonProdGroupIDs)
	dashboardService := services.NewDashboardService(zbx, cfg.Dashboard)

	var digestService *services.DigestService
	if cfg.SlackEnabled() {
		notifier, err := slackutil.NewNotifier(cfg.SlackBotToken, cfg.SlackChannel, cfg.SlackProxyURL)
		if err != nil {
			log.Fatalf("Failed to initialize Slack notifier: %v", err)
		}
		defer notifier.Close()
		digestService = services.NewDigestService(dashboardService, notifier, frontendURL)
		log.Printf("Slack digest is ENABLED for channel %s", notifier.Channel())
	} else {
		log.Printf("Slack digest is DISABLED (set SLACK_BOT_TOKEN and SLACK_CHANNEL)")
	}

	// Start the scheduled digest
	stopJobs := make(chan struct{})
	if digestService != nil && cfg.DigestInterval > 0 {
		scheduler := jobs.NewDigestScheduler(digestService, filterService.Defaults())
		go scheduler.Start(cfg.DigestInterval, stopJobs)
		log.Printf("Scheduled digest every %s", cfg.DigestInterval)
	}

	views, err := view.New()
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	// Initialize handlers
	var userChecker handlers.UserChecker
	if cfg.AllowZabbixLogin {
		userChecker = zbx
	}
	httpHandler := handlers.NewHTTPHandler(db)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware, userChecker, views)
	dashboardHandler := handlers.NewDashboardHandler(filterService, dashboardService, digestService, views, frontendURL, cfg.Dashboard.RefreshSeconds)
	wsHandler := handlers.NewDashboardWSHandler(filterService, dashboardService, time.Duration(cfg.Dashboard.RefreshSeconds)*time.Second)

	// Set up HTTP server routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	dashboardHandler.SetupRoutes(mux)
	wsHandler.SetupRoutes(mux)

	// Request ids first, then JWT authentication
	handler := middleware.RequestIDMiddleware(jwtAuthMiddleware.Wrap(mux))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Dashboard: http://localhost:%d/zentinel", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)

	// Wait for a shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	close(stopJobs)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Websocket connections are hijacked and not tracked by Shutdown
	log.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	log.Println("Shutdown complete")
}

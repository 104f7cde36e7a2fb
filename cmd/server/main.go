package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tasaciones/server/config"
	"tasaciones/server/internal/api"
	"tasaciones/server/internal/auth"
	"tasaciones/server/internal/database"
	"tasaciones/server/internal/geocoding"
	"tasaciones/server/internal/geometry"
	"tasaciones/server/internal/imagekit"
	"tasaciones/server/internal/metrics"
	"tasaciones/server/internal/queue"
	"tasaciones/server/internal/scheduler"
	"tasaciones/server/internal/sheets"
	"tasaciones/server/internal/store"
)

const (
	sessionIdleTimeout = 2 * time.Hour
	sweepInterval      = 10 * time.Minute
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	gin.SetMode(gin.ReleaseMode)

	dbPath := cfg.Database.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", dbPath)

	feed := queue.NewChangeQueue(cfg.Database.FeedBufferSize, logger)
	feed.Start()
	defer feed.Close()
	metrics.WatchFeed(feed.Len)

	db, err := database.NewDatabase(dbPath, feed, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	importer := sheets.NewImporter(cfg.Sheets.BaseURL, logger)
	sessions := store.NewManager(db, importer, cfg.Writer.QueueSize, logger)
	sessions.LimitAnonymous(cfg.Sessions.MaxAnonymous)
	defer sessions.CloseAll()

	signer, err := imagekit.NewSigner(cfg.ImageKitKeys())
	if err != nil {
		logger.WithError(err).Warn("ImageKit credentials not configured, image uploads disabled")
	}

	var locator geometry.Locator
	if cfg.Geocoding.Enabled {
		cacheDir := cfg.Geocoding.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(os.TempDir(), "tasaciones", "geocode_cache")
		}
		locator = geocoding.NewGeocoder(logger, cacheDir, cfg.Geocoding.Country)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, logger)
	if verifier == nil {
		logger.Warn("AUTH_JWT_SECRET not set, every request is anonymous")
	}

	sched := scheduler.NewScheduler(logger)
	sched.Every("sweep_sessions", sweepInterval, func() {
		sessions.Sweep(sessionIdleTimeout)
	})
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(sessions, signer, locator, logger)
	router := api.NewRouter(handler, verifier, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithField("sessions", sessions.Len()).Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}

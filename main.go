package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/warbler/internal/api"
	"github.com/isdelr/warbler/internal/auth"
	"github.com/isdelr/warbler/internal/config"
	"github.com/isdelr/warbler/internal/database"
	"github.com/isdelr/warbler/internal/logger"
	"github.com/isdelr/warbler/internal/monitoring"
	"github.com/isdelr/warbler/internal/ratelimit"
	"github.com/isdelr/warbler/internal/services"
	"github.com/isdelr/warbler/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.LogLevel, !cfg.IsProduction())
	log.Info().Str("config", cfg.String()).Msg("Configuration loaded")

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db, eventService)
	messageService := services.NewMessageService(db, eventService, hub)
	backupService := services.NewBackupService(db, eventService, cfg.BackupPath)

	// Set up authentication
	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionName, cfg.SessionMaxAge, cfg.IsProduction())
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authenticator := auth.NewAuthenticator(sessions, tokens, userService, func(err error) bool {
		return errors.Is(err, services.ErrUserNotFound)
	})
	limiter := ratelimit.NewPerMinute(cfg.LoginRatePerMinute)

	// Set up and run the background stats updater
	statUpdater := monitoring.NewStatUpdater(db, eventService, cfg.StatsInterval)
	go statUpdater.Run()

	// Set up and run the background scheduler
	scheduler, err := monitoring.NewScheduler(eventService, cfg.EventRetention, cfg.EventPruneSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure scheduler")
	}
	if err := scheduler.Every("@every 10m", "ratelimit.sweep", func() { limiter.Sweep() }); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure scheduler")
	}
	if cfg.BackupSchedule != "" {
		if err := scheduler.ScheduleBackups(cfg.BackupSchedule, backupService, cfg.BackupKeep); err != nil {
			log.Fatal().Err(err).Msg("Failed to configure scheduler")
		}
	}
	go scheduler.Run()

	// Set up router
	router := api.NewRouter(db, hub, authenticator, limiter, cfg.AllowedOrigins, cfg.TrustProxyHeaders, userService, messageService, eventService)

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	statUpdater.Stop()
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("Server exiting")
}

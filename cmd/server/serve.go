package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"studytracker-backend/internal/database"
	"studytracker-backend/internal/handlers"
	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/router"
	"studytracker-backend/internal/services"
	"studytracker-backend/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version).
		Str("driver", cfg.StorageDriver).
		Msg("Starting Study Tracker")

	// ──── Storage ────
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database")
		}
	}()

	// ──── Redis (optional) ────
	var redisClients *database.RedisClients
	if cfg.RedisURL != "" {
		redisClients, err = database.NewRedisClients(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClients.Close()
		logger.Info().Msg("Redis connected")
	} else {
		logger.Warn().Msg("REDIS_URL not set, using in-process locks and events")
	}

	// ──── Services ────
	identity := services.NewIdentityService(store, cfg.IdentityCacheSize, cfg.IdentityCacheTTL, logger)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, identity)

	var pubsub *redis.Client
	if redisClients != nil {
		pubsub = redisClients.PubSub
	}
	hub := websocket.NewHub(jwtAuth, pubsub, []string{cfg.FrontendURL}, logger)
	defer hub.Close()

	trackerOpts := []services.TrackerOption{services.WithEventPublisher(hub)}
	if redisClients != nil {
		trackerOpts = []services.TrackerOption{
			services.WithLocker(services.NewRedisLocker(redisClients.Cmd, cfg.LockTTL, cfg.LockWait)),
			services.WithEventPublisher(services.NewRedisEventPublisher(redisClients.Cmd)),
		}
		if cfg.LeaderboardCacheTTL > 0 {
			trackerOpts = append(trackerOpts,
				services.WithLeaderboardCache(services.NewRedisLeaderboardCache(redisClients.Cmd, cfg.LeaderboardCacheTTL)))
		}
	}
	tracker := services.NewSessionTracker(store, logger, trackerOpts...)
	books := services.NewBookService(store)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		defer limiter.Close()
	}

	// ──── HTTP ────
	r := router.New(router.Deps{
		JWTAuth:         jwtAuth,
		RequireApproval: cfg.RequireApproval,
		RateLimiter:     limiter,
		StudySessions:   handlers.NewStudySessionHandler(tracker),
		Dashboard:       handlers.NewDashboardHandler(tracker, books),
		Books:           handlers.NewBookHandler(books, tracker),
		Users:           handlers.NewUserHandler(identity),
		Hub:             hub,
		Store:           store,
		FrontendURL:     cfg.FrontendURL,
		Logger:          logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"student-records-api/internal/auth"
	"student-records-api/internal/cache"
	"student-records-api/internal/config"
	"student-records-api/internal/database"
	"student-records-api/internal/handlers"
	"student-records-api/internal/logging"
	"student-records-api/internal/middleware"
	"student-records-api/internal/realtime"
	"student-records-api/internal/repo"
	"student-records-api/internal/routes"
	"student-records-api/internal/services"
	"student-records-api/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const janitorInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped cleanly")
}

func run(ctx context.Context, cfg config.Config) error {
	// Init database
	db, err := database.Open(cfg.DBPath, database.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}()

	store, checks, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()
	checks["database"] = func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	// The runner context is detached from the signal context; Shutdown drains it.
	taskCtx, cancelTasks := context.WithCancel(log.Logger.WithContext(context.Background()))
	defer cancelTasks()
	hub := realtime.NewHub()
	runner := tasks.NewRunner(store, tasks.Options{
		Workers:   cfg.TaskWorkers,
		QueueSize: cfg.TaskQueueSize,
		OnDone:    hub.NotifyTask,
	})
	runner.Start(taskCtx)

	sessions := auth.NewStore(db, auth.Options{SessionTTL: cfg.SessionTTL, BcryptCost: cfg.BcryptCost})
	students := repo.NewStudents(db)
	if err := seed(ctx, cfg, sessions, students); err != nil {
		return err
	}

	svc := services.NewStudentService(students, store, runner, cfg.CacheTTL)
	router := routes.SetupRoutes(routes.Deps{
		Auth:           handlers.NewAuthHandler(sessions, auth.CookieOptions{Secure: cfg.CookieSecure}),
		Students:       handlers.NewStudentHandler(svc),
		Events:         handlers.NewEventsHandler(hub, cfg.AllowedOrigins),
		Sessions:       sessions,
		AuthLimiter:    authLimiter(cfg),
		TrustedProxies: cfg.TrustedProxies,
		AllowedOrigins: cfg.AllowedOrigins,
		Checks:         checks,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("cache", cfg.CacheBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("background tasks did not drain")
	}
	return nil
}

// openCache builds the configured cache backend and its health check.
func openCache(ctx context.Context, cfg config.Config) (cache.Store, map[string]routes.HealthCheck, func(), error) {
	checks := map[string]routes.HealthCheck{}
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client, err := cache.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		store := cache.NewRedisStore(client)
		checks["cache"] = store.Ping
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis cache connected")
		return store, checks, func() { closeRedis(client) }, nil
	default:
		store := cache.NewMemoryStore()
		janitorCtx, cancel := context.WithCancel(context.Background())
		go store.RunJanitor(janitorCtx, janitorInterval)
		return store, checks, cancel, nil
	}
}

func authLimiter(cfg config.Config) *middleware.RateLimiter {
	if cfg.AuthRateRPS == 0 {
		return nil
	}
	return middleware.NewRateLimiter(cfg.AuthRateRPS, cfg.AuthRateBurst)
}

func closeRedis(c *redis.Client) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("close redis")
	}
}

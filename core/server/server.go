package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"familycal/core/cache"
	"familycal/core/config"
	"familycal/core/database"
	"familycal/core/logger"
	"familycal/modules/audit"
	"familycal/modules/calendar"
	"familycal/modules/calendar/worker"
)

// Run boots the API: config, database, cache, module wiring, the optional
// background sync worker, and the HTTP listener. Blocks until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.InitDB(database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
	})
	if err != nil {
		return err
	}

	appCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	redisAvailable := err == nil
	if err != nil {
		// Rate limiting still works per instance without redis.
		logger.Warn("Redis unavailable, using in-memory cache", "error", err)
		appCache = cache.NewMemoryCache()
	}
	defer appCache.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	auditService := audit.Init(e, &db)
	calendarService, calendarRepo, err := calendar.Init(e, &db, appCache, cfg, auditService)
	if err != nil {
		return err
	}

	if cfg.Calendar.SyncAllCron != "" && redisAvailable {
		go func() {
			redisOpt := asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}
			syncWorker := worker.NewSyncWorker(calendarService, calendarRepo)
			if err := worker.Run(redisOpt, cfg.Calendar.SyncAllCron, syncWorker); err != nil {
				logger.Error("Sync worker stopped", "error", err)
			}
		}()
	} else if cfg.Calendar.SyncAllCron != "" {
		logger.Warn("Background sync disabled: redis is required for the scheduler")
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", "error", err)
		}
	}()
	logger.Info("Server started", "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/user-insights/internal/cache"
	"github.com/iliyamo/user-insights/internal/config"
	"github.com/iliyamo/user-insights/internal/database"
	"github.com/iliyamo/user-insights/internal/handler"
	"github.com/iliyamo/user-insights/internal/logger"
	"github.com/iliyamo/user-insights/internal/metrics"
	"github.com/iliyamo/user-insights/internal/middleware"
	"github.com/iliyamo/user-insights/internal/queue"
	"github.com/iliyamo/user-insights/internal/repository"
	"github.com/iliyamo/user-insights/internal/router"
	"github.com/iliyamo/user-insights/internal/service"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl := logger.New(cfg.Env, cfg.LogLevel, "user-insights")
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.RunMigrations {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	m := metrics.New("user_insights")

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		zl.Warn("redis unreachable; statistics cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	cacheCfg := config.LoadCacheConfig()
	var store cache.Cache = cache.Nop{}
	if cacheCfg.Enabled && rdb != nil {
		store = cache.NewRedis(rdb, cacheCfg.Prefix)
	}
	memo := cache.NewMemo(store, cacheCfg.TTL, m.ObserveCache)
	memo.SetComputeTimeout(cfg.StoreTimeout)

	opts := []service.Option{
		service.WithLogger(zl),
		service.WithStoreTimeout(cfg.StoreTimeout),
		service.WithPublishObserver(m.ObservePublish),
	}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.AMQPURL, zl)
		defer pub.Close()
		opts = append(opts, service.WithEvents(pub))

		consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.EventsLogPath, zl)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	authSvc := service.NewAuthService(users, tokens, service.AuthConfig{
		JWTSecret:      cfg.JWTSecret,
		BcryptCost:     cfg.BcryptCost,
		PasswordPolicy: cfg.PasswordPolicy,
	}, opts...)
	userSvc := service.NewUserService(users, cfg.BcryptCost, cfg.PasswordPolicy, opts...)
	statsSvc := service.NewStatisticsService(users, memo, service.StatisticsConfig{
		Location:   cfg.Timezone,
		BucketMode: cfg.StatsBucketMode,
	}, opts...)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(zl)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(m.Middleware())
	e.Use(middleware.RequestLogger(zl))

	router.Register(e, router.Deps{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Statistics:    handler.NewStatisticsHandler(statsSvc),
		Authenticator: authSvc,
		Limiter:       middleware.NewRateLimiter(rdb, zl, m.ObserveRateLimited),
		Limits:        config.LoadRateLimits(),
		Metrics:       m.Handler(),
	})

	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", ":"+cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

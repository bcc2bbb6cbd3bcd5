package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"restopos/backend/internal/cache"
	"restopos/backend/internal/config"
	"restopos/backend/internal/domain"
	"restopos/backend/internal/httpapi"
	"restopos/backend/internal/logger"
	"restopos/backend/internal/notify"
	"restopos/backend/internal/service"
	"restopos/backend/internal/store"
	"restopos/backend/internal/store/memory"
	pgstore "restopos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.ForEnvironment(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat))
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.RunMigrations {
			if err := pg.Migrate(log); err != nil {
				log.Fatal("migrations failed", zap.Error(err))
			}
		}
		if err := bootstrapAdmin(ctx, pg, os.Getenv("SEED_ADMIN_PASSWORD")); err != nil {
			log.Warn("admin bootstrap skipped", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	var queue notify.Queue = notify.NewMemoryQueue(cfg.NotifyBuffer)
	var forwarder *notify.BufferedQueue
	if cfg.RedisAddr != "" {
		redisQueue := notify.NewRedisQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotifyQueueKey)
		if err := redisQueue.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-process notification queue", zap.Error(err))
			_ = redisQueue.Close()
		} else {
			forwarder = notify.NewBufferedQueue(redisQueue, cfg.NotifyBuffer, log.Named("notify"))
			forwarder.Start(context.Background())
			queue = forwarder
			closers = append(closers, redisQueue.Close)
			log.Info("notification queue: redis", zap.String("key", cfg.NotifyQueueKey))
		}
	} else {
		log.Info("notification queue: in-process", zap.Int("buffer", cfg.NotifyBuffer))
	}

	worker := notify.NewWorker(queue, repo, log.Named("notify"))
	worker.Start(context.Background())

	svc := service.New(repo, notify.NewDispatcher(queue, log.Named("notify")), log.Named("service"), cfg.DefaultCurrency)
	var summaries cache.SummaryCache = cache.NewMemorySummaryCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, caching summaries in process", zap.Error(err))
			_ = redisCache.Close()
		} else {
			summaries = redisCache
			closers = append(closers, redisCache.Close)
		}
	}
	svc.SetSummaryCache(summaries, time.Duration(cfg.SummaryCacheMinutes)*time.Minute)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	if forwarder != nil {
		if err := forwarder.Stop(shutdownCtx); err != nil {
			log.Error("notification forwarder did not stop", zap.Error(err))
		}
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Error("notification worker did not stop", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsProduction() && strings.HasPrefix(cfg.AllowedOrigin, "http://127.0.0.1") {
		return fmt.Errorf("ALLOWED_ORIGIN must be set in production")
	}
	return nil
}

type userBootstrapper interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

// bootstrapAdmin creates the first admin account on an empty user table.
// It does nothing once any account exists.
func bootstrapAdmin(ctx context.Context, users userBootstrapper, password string) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if len(password) < 8 {
		return fmt.Errorf("no users exist and SEED_ADMIN_PASSWORD is unset or shorter than 8 characters")
	}
	hash, err := httpapi.HashPassword(password)
	if err != nil {
		return err
	}
	return users.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  hash,
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}

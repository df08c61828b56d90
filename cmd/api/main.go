package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maru-platform/internal/audit"
	"maru-platform/internal/auth"
	"maru-platform/internal/config"
	"maru-platform/internal/permission"
	"maru-platform/internal/rbac"
	"maru-platform/pkg/logger"
	"maru-platform/pkg/metrics"
	"maru-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("env file load failed", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if !cfg.IsProduction() {
		if err := utils.ApplySchema(rootCtx, db, append([]string{permission.Schema}, audit.Schema...)...); err != nil {
			log.Error("schema bootstrap failed", "err", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "maru-api")

	readiness := []func(context.Context) error{
		func(ctx context.Context) error { return utils.PingPostgres(ctx, db, 2*time.Second) },
	}

	source := permission.NewPostgresSource(db)
	var cache permission.Cache
	switch cfg.Permission.CacheBackend {
	case "redis":
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		readiness = append(readiness, func(ctx context.Context) error { return utils.PingRedis(ctx, rdb, time.Second) })
		cache = permission.NewRedisCache(rdb, source, permission.RedisCacheOptions{
			TTL:     cfg.Permission.CacheTTL,
			Logger:  log,
			Metrics: m,
		})
	default:
		cache = permission.NewMemoryCache(source, permission.MemoryCacheOptions{
			TTL:     cfg.Permission.CacheTTL,
			Logger:  log,
			Metrics: m,
		})
	}

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	evaluator := rbac.NewEvaluator(cache, auditSvc, log).WithMetrics(m)

	// Credential strategies are pluggable; the dev account keeps the login flow usable locally.
	dojang := int64(1)
	creds, err := auth.NewStaticCredentials(cfg.Auth.DevUsername, cfg.Auth.DevPassword,
		auth.Identity{UserID: 1, TenantID: 1, DojangID: &dojang, Role: string(rbac.RoleOwner)},
		bcrypt.DefaultCost)
	if err != nil {
		log.Error("credentials init failed", "err", err)
		os.Exit(1)
	}
	authSvc := auth.NewService(authManager,
		creds,
		auth.StaticIdentities{Role: string(rbac.RoleOwner), DojangID: &dojang},
		auth.ServiceOptions{RotateRefreshTokens: cfg.Auth.RotateRefreshTokens, Logger: log},
	)

	r := newRouter(log, routeDeps{
		Tokens:       authManager,
		Auth:         authSvc,
		Evaluator:    evaluator,
		Cache:        cache,
		Audit:        auditSvc,
		Metrics:      m,
		Gatherer:     reg,
		Readiness:    readiness,
		CookieSecure: cfg.Auth.CookieSecure,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "permission_cache", cfg.Permission.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

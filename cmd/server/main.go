package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bank-core/internal/config"
	"bank-core/internal/engine"
	"bank-core/internal/events"
	"bank-core/internal/httpapi"
	"bank-core/internal/limits"
	"bank-core/internal/locker"
	"bank-core/internal/qr"
	"bank-core/internal/store"
	"bank-core/internal/store/memory"
	"bank-core/internal/store/postgres"
)

func main() {
	start := time.Now()
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("startup begin",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("env", cfg.Env),
		zap.Bool("migrate", cfg.DBMigrate),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pool := openPool(startCtx, logger, cfg)
		defer pool.Close()
		if cfg.DBMigrate {
			if err := postgres.Migrate(startCtx, pool); err != nil {
				logger.Fatal("migrations failed", zap.Error(err))
			}
			logger.Info("migrations complete")
		}
		st = postgres.New(pool)
	} else {
		logger.Info("no database configured, using in-memory store")
		st = memory.New()
	}

	tracker := limits.Tracker(limits.NewMemory())
	emitters := []events.Emitter{events.NewLog(logger)}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(startCtx).Err(); err != nil {
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		tracker = limits.NewRedis(client)
		emitters = append(emitters, events.NewPublisher(client))
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}
	if cfg.WebhookURL != "" {
		emitters = append(emitters, events.NewWebhook(cfg.WebhookURL))
		logger.Info("webhook notifier enabled", zap.String("url", cfg.WebhookURL))
	}

	eng := engine.New(st, locker.New(), tracker, events.NewMulti(logger, emitters...), logger)
	reg := qr.New(st, eng, []byte(cfg.QRSecret), logger)
	h := httpapi.NewHandlers(st, eng, reg)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.Router(h, cfg.MaxInflight),

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("ready",
		zap.Duration("startup", time.Since(start).Truncate(time.Millisecond)),
		zap.String("addr", cfg.HTTPAddr),
	)

	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}

func openPool(ctx context.Context, logger *zap.Logger, cfg *config.Config) *pgxpool.Pool {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("parse dsn failed", zap.Error(err))
	}

	pc.MaxConns = int32(cfg.DBMaxConns)
	pc.MinConns = 1
	pc.HealthCheckPeriod = 10 * time.Second
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}
	return pool
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrEthical07/sessionflow"
	"github.com/MrEthical07/sessionflow/internal/config"
	"github.com/MrEthical07/sessionflow/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg        *config.AppConfig
	logger     *slog.Logger
	controller *sessionflow.Controller
	registry   *prometheus.Registry
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func buildApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg, logger: newLogger(cfg.SlogLevel())}

	redisAddr := cfg.Redis.Addr
	if cfg.Redis.Embedded {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		redisAddr = mr.Addr()
		a.logger.Warn("using embedded redis; sessions are lost on exit", "addr", redisAddr)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	store, err := users.Open(ctx, cfg.Users.Driver, cfg.Users.DSN)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open user directory: %w", err)
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	a.registry = prometheus.NewRegistry()
	c, err := sessionflow.New().
		WithConfig(cfg.Config).
		WithRedis(rdb).
		WithUserDirectory(store).
		WithLogger(a.logger).
		WithMetrics(a.registry).
		Build()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build controller: %w", err)
	}
	a.controller = c
	a.closers = append(a.closers, c.Close)
	return a, nil
}

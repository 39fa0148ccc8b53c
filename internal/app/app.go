// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app assembles the audit service from configuration: rule
// registry, auditor, optional Redis and history store, metrics, pipeline.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/mailaudit/internal/audit"
	"github.com/bcem/mailaudit/internal/config"
	"github.com/bcem/mailaudit/internal/history"
	"github.com/bcem/mailaudit/internal/metrics"
	"github.com/bcem/mailaudit/internal/pipeline"
	"github.com/bcem/mailaudit/internal/queue"
	"github.com/bcem/mailaudit/internal/reportcache"
	"github.com/bcem/mailaudit/internal/rules"
	"github.com/bcem/mailaudit/internal/server"
)

// SetupLogging installs a JSON slog handler at the given level as the
// default logger.
func SetupLogging(w io.Writer, level string) error {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// App holds the wired components. Fields for disabled features are nil.
type App struct {
	Config    *config.Config
	Registry  *rules.Registry
	Auditor   *audit.Auditor
	Pipeline  *pipeline.Pipeline
	Metrics   *metrics.Metrics
	Gatherer  *prometheus.Registry
	Redis     *redis.Client
	Publisher *queue.Publisher
	History   history.Store
}

// New connects every configured dependency. Redis is optional: an empty URL
// disables the report cache and event queue.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: rules.Default(),
		Gatherer: prometheus.NewRegistry(),
	}
	a.Metrics = metrics.New(a.Gatherer)
	a.Auditor = audit.New(a.Registry, audit.WithObserver(a.Metrics))

	opts := []pipeline.Option{pipeline.WithObserver(a.Metrics)}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opt)
		a.Publisher = queue.NewPublisher(a.Redis, cfg.AuditQueue)
		if err := a.Publisher.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("connected to Redis", "queue", cfg.AuditQueue)

		opts = append(opts,
			pipeline.WithCache(reportcache.New(a.Redis, cfg.CacheTTL)),
			pipeline.WithPublisher(a.Publisher),
		)
	}

	store, err := history.Open(ctx, cfg.HistoryDriver, cfg.HistoryDSN)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open audit history: %w", err)
	}
	if store != nil {
		a.History = store
		opts = append(opts, pipeline.WithHistory(store))
	}

	a.Pipeline = pipeline.New(a.Auditor, opts...)

	slog.Info("audit service assembled",
		"rules", a.Registry.Names(),
		"redis", a.Redis != nil,
		"history", cfg.HistoryDriver,
	)
	return a, nil
}

// ServerOptions describes the HTTP API over the assembled components.
func (a *App) ServerOptions() server.Options {
	checks := map[string]server.HealthCheck{}
	if a.Publisher != nil {
		checks["redis"] = a.Publisher.Ping
	}
	return server.Options{
		Pipeline:       a.Pipeline,
		History:        a.History,
		Registry:       a.Registry,
		MaxUploadBytes: a.Config.MaxUploadBytes,
		AllowedOrigins: a.Config.AllowedOrigins,
		Gatherer:       a.Gatherer,
		Checks:         checks,
	}
}

// Close releases every connection.
func (a *App) Close() {
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			slog.Error("failed to close history store", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

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

// Email Audit Service: HTTP server
//
// Entry point for the audit API. It:
//  1. Loads .env and configuration (config.yaml + environment)
//  2. Connects to Redis and the history database when configured
//  3. Builds the rule registry and audit pipeline once
//  4. Serves the HTTP API and Prometheus metrics
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bcem/mailaudit/internal/app"
	"github.com/bcem/mailaudit/internal/config"
	"github.com/bcem/mailaudit/internal/server"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	// Structured JSON logging (level refined once config is loaded)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("starting email audit service", "version", server.Version)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := app.SetupLogging(os.Stdout, cfg.LogLevel); err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"max_upload_bytes", cfg.MaxUploadBytes,
		"redis", cfg.RedisURL != "",
		"history", cfg.HistoryDriver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Assemble pipeline and dependencies ---
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise audit service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- HTTP API ---
	ready, stopped, err := server.Serve(ctx, cfg.Port, server.NewHandler(a.ServerOptions()))
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	<-stopped

	slog.Info("email audit service stopped")
}

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

// Package server exposes the audit pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcem/mailaudit/internal/extract"
	"github.com/bcem/mailaudit/internal/history"
	"github.com/bcem/mailaudit/internal/pipeline"
	"github.com/bcem/mailaudit/internal/rules"
)

const (
	ServiceName = "email-audit-service"
	Version     = "1.0.0"

	defaultListLimit = 20
	maxListLimit     = 100
)

// Processor is satisfied by *pipeline.Pipeline.
type Processor interface {
	Process(ctx context.Context, source string, raw []byte) (*pipeline.Outcome, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options holds the dependencies of the HTTP API. Pipeline is required.
type Options struct {
	Pipeline       Processor
	History        history.Store
	Registry       *rules.Registry
	MaxUploadBytes int64
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Checks         map[string]HealthCheck
}

// Handler serves the audit API.
type Handler struct {
	opts Options
}

// NewHandler builds the routed, CORS-wrapped API handler.
func NewHandler(opts Options) http.Handler {
	h := &Handler{opts: opts}

	router := mux.NewRouter()
	router.HandleFunc("/", h.serveRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", h.serveHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/audit", h.serveAudit).Methods(http.MethodPost)
	api.HandleFunc("/audits", h.serveListAudits).Methods(http.MethodGet)
	api.HandleFunc("/audits/{id}", h.serveGetAudit).Methods(http.MethodGet)
	api.HandleFunc("/rules", h.serveRules).Methods(http.MethodGet)

	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Wrap the router so preflight OPTIONS (unmatched by route) get CORS headers.
	return corsMiddleware(opts.AllowedOrigins, router)
}

// serveAudit accepts a multipart upload in field "file" and returns the
// rendered report.
func (h *Handler) serveAudit(w http.ResponseWriter, r *http.Request) {
	limit := h.opts.MaxUploadBytes
	if limit > 0 {
		if r.ContentLength > limit {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File too large.")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File too large.")
			return
		}
		writeDetail(w, http.StatusBadRequest, "A multipart field named 'file' is required.")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(header.Filename, ".eml") {
		writeDetail(w, http.StatusBadRequest, "Only .eml files are supported.")
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		slog.Error("failed to read upload", "filename", header.Filename, "error", err)
		writeDetail(w, http.StatusBadRequest, "Failed to read upload.")
		return
	}

	out, err := h.opts.Pipeline.Process(r.Context(), "upload:"+header.Filename, raw)
	if err != nil {
		var malformed *extract.MalformedMessageError
		if errors.As(err, &malformed) {
			slog.Info("rejected malformed upload", "filename", header.Filename, "error", err)
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse EML: %v", err))
			return
		}
		slog.Error("audit failed", "filename", header.Filename, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Error processing email.")
		return
	}

	if out.ID != "" {
		w.Header().Set("X-Audit-ID", out.ID)
	}
	if out.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out.Report)
}

// auditSummary is a history record without its report body.
type auditSummary struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Subject      string    `json:"subject"`
	Sender       string    `json:"sender"`
	OverallScore float64   `json:"overall_score"`
	PassedRules  int       `json:"passed_rules"`
	FailedRules  int       `json:"failed_rules"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *Handler) serveListAudits(w http.ResponseWriter, r *http.Request) {
	if h.opts.History == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Audit history is disabled.")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer.")
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.opts.History.ListRecent(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list audits", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch audits.")
		return
	}

	out := make([]auditSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, auditSummary{
			ID:           rec.ID,
			Source:       rec.Source,
			Subject:      rec.Subject,
			Sender:       rec.Sender,
			OverallScore: rec.OverallScore,
			PassedRules:  rec.PassedRules,
			FailedRules:  rec.FailedRules,
			CreatedAt:    rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": out})
}

func (h *Handler) serveGetAudit(w http.ResponseWriter, r *http.Request) {
	if h.opts.History == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Audit history is disabled.")
		return
	}

	id := mux.Vars(r)["id"]
	rec, err := h.opts.History.Get(r.Context(), id)
	if err != nil {
		slog.Error("failed to fetch audit", "audit_id", id, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch audit.")
		return
	}
	if rec == nil {
		writeDetail(w, http.StatusNotFound, "Audit not found.")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type ruleInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

func (h *Handler) serveRules(w http.ResponseWriter, _ *http.Request) {
	out := []ruleInfo{}
	if h.opts.Registry != nil {
		for _, rule := range h.opts.Registry.Rules() {
			out = append(out, ruleInfo{Name: rule.Name(), Description: rule.Description(), Weight: rule.Weight()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (h *Handler) serveRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to Email Audit Service",
		"version": Version,
		"docs":    "/api/v1/rules",
	})
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, check := range h.opts.Checks {
		if err := check(ctx); err != nil {
			slog.Warn("health check failed", "check", name, "error", err)
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "unhealthy",
			"service": ServiceName,
			"version": Version,
			"checks":  failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
		"version": Version,
	})
}

func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	wildcard := len(allowed) == 0
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		origins[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// Serve starts the HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections. The stopped channel closes once
// in-flight requests have drained after ctx is cancelled.
func Serve(ctx context.Context, port int, handler http.Handler) (ready, stopped <-chan struct{}, err error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind http port %d: %w", port, err)
	}

	readyCh := make(chan struct{})
	stoppedCh := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
		close(stoppedCh)
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(readyCh)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return readyCh, stoppedCh, nil
}

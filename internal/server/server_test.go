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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bcem/mailaudit/internal/audit"
	"github.com/bcem/mailaudit/internal/history"
	"github.com/bcem/mailaudit/internal/metrics"
	"github.com/bcem/mailaudit/internal/pipeline"
	"github.com/bcem/mailaudit/internal/rules"
)

const sampleEML = "From: a@example.com\r\nSubject: ok\r\n\r\nok"

// uploadRequest builds a multipart POST with the given file field.
func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestHandler(t *testing.T, mutate func(*Options)) (http.Handler, history.Store) {
	t.Helper()
	store, err := history.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	registry := rules.Default()
	opts := Options{
		Pipeline:       pipeline.New(audit.New(registry, audit.WithObserver(m)), pipeline.WithHistory(store), pipeline.WithObserver(m)),
		History:        store,
		Registry:       registry,
		MaxUploadBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
		Gatherer:       reg,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewHandler(opts), store
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestServeAudit_Success(t *testing.T) {
	h, store := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "ok.eml", sampleEML))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	id := rec.Header().Get("X-Audit-ID")
	if id == "" {
		t.Fatal("missing X-Audit-ID header")
	}

	doc := decode(t, rec)
	if doc["overall_score"] != 0.0 {
		t.Errorf("overall_score = %v, want 0", doc["overall_score"])
	}
	if n := len(doc["rule_results"].([]any)); n != 3 {
		t.Errorf("rule_results = %d, want 3", n)
	}

	saved, err := store.Get(context.Background(), id)
	if err != nil || saved == nil {
		t.Fatalf("audit %s not stored: %v", id, err)
	}
}

func TestServeAudit_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantDetail string
	}{
		{
			name:       "wrong extension",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "mail.txt", sampleEML) },
			wantStatus: http.StatusBadRequest,
			wantDetail: "Only .eml files are supported.",
		},
		{
			name:       "malformed message",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "bad.eml", "   ") },
			wantStatus: http.StatusBadRequest,
			wantDetail: "Failed to parse EML: ",
		},
		{
			name: "missing file field",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/audit", strings.NewReader("x"))
				req.Header.Set("Content-Type", "text/plain")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantDetail: "A multipart field named 'file' is required.",
		},
		{
			name:       "too large",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "big.eml", strings.Repeat("x", 2<<20)) },
			wantStatus: http.StatusRequestEntityTooLarge,
			wantDetail: "File too large.",
		},
	}

	h, _ := newTestHandler(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req(t))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			detail, _ := decode(t, rec)["detail"].(string)
			if !strings.HasPrefix(detail, tt.wantDetail) {
				t.Errorf("detail = %q, want prefix %q", detail, tt.wantDetail)
			}
		})
	}
}

// failingProcessor returns an unexpected, non-extraction error.
type failingProcessor struct{}

func (failingProcessor) Process(context.Context, string, []byte) (*pipeline.Outcome, error) {
	return nil, errors.New("boom")
}

func TestServeAudit_InternalError(t *testing.T) {
	h, _ := newTestHandler(t, func(o *Options) { o.Pipeline = failingProcessor{} })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "ok.eml", sampleEML))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAuditHistoryEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, uploadRequest(t, fmt.Sprintf("m%d.eml", i), sampleEML))
		ids = append(ids, rec.Header().Get("X-Audit-ID"))
		time.Sleep(2 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audits?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	audits := decode(t, rec)["audits"].([]any)
	if len(audits) != 2 {
		t.Fatalf("audits = %d, want 2", len(audits))
	}
	if first := audits[0].(map[string]any); first["id"] != ids[2] {
		t.Errorf("newest id = %v, want %s", first["id"], ids[2])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audits/"+ids[0], nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decode(t, rec)["source"]; got != "upload:m0.eml" {
		t.Errorf("source = %v, want upload:m0.eml", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audits/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audits?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestAuditHistoryDisabled(t *testing.T) {
	h, _ := newTestHandler(t, func(o *Options) { o.History = nil })

	for _, path := range []string{"/api/v1/audits", "/api/v1/audits/abc"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestRootAndHealth(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := decode(t, rec)["version"]; got != Version {
		t.Errorf("version = %v, want %s", got, Version)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["status"] != "healthy" || body["service"] != ServiceName {
		t.Errorf("health = %d %v", rec.Code, body)
	}
}

func TestHealth_FailingCheck(t *testing.T) {
	h, _ := newTestHandler(t, func(o *Options) {
		o.Checks = map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	checks := decode(t, rec)["checks"].(map[string]any)
	if checks["redis"] != "connection refused" {
		t.Errorf("checks = %v", checks)
	}
}

func TestRulesEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))
	list := decode(t, rec)["rules"].([]any)
	if len(list) != 3 {
		t.Fatalf("rules = %d, want 3", len(list))
	}
	if name := list[0].(map[string]any)["name"]; name != "GreetingRule" {
		t.Errorf("first rule = %v, want GreetingRule", name)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	h.ServeHTTP(httptest.NewRecorder(), uploadRequest(t, "ok.eml", sampleEML))
	h.ServeHTTP(httptest.NewRecorder(), uploadRequest(t, "bad.eml", ""))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`mailaudit_audits_total{outcome="completed"} 1`,
		`mailaudit_extraction_failures_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "https://a.example.com", "*"},
		{"listed origin", []string{"https://a.example.com"}, "https://a.example.com", "https://a.example.com"},
		{"unlisted origin", []string{"https://a.example.com"}, "https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, func(o *Options) { o.AllowedOrigins = tt.allowed })

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/audit", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("preflight status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServe_ReadyAndShutdown(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, stopped, err := Serve(ctx, 0, h)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never signalled readiness")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

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

// Package pipeline wires extraction, auditing and report rendering together
// with the optional cache, history store and event queue.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bcem/mailaudit/internal/audit"
	"github.com/bcem/mailaudit/internal/extract"
	"github.com/bcem/mailaudit/internal/history"
	"github.com/bcem/mailaudit/internal/models"
	"github.com/bcem/mailaudit/internal/report"
)

// ReportCache is satisfied by *reportcache.Cache.
type ReportCache interface {
	Get(ctx context.Context, raw []byte) ([]byte, bool, error)
	Put(ctx context.Context, raw, report []byte) error
}

// EventPublisher is satisfied by *queue.Publisher.
type EventPublisher interface {
	PublishAuditCompleted(ctx context.Context, event *models.AuditEvent) error
}

// ExtractionObserver is told about every rejected submission.
type ExtractionObserver interface {
	ExtractionFailed()
}

// Outcome is the result of processing one message.
type Outcome struct {
	// ID identifies the audit in the history store. Empty when the report
	// could not be generated.
	ID string
	// Report is the rendered JSON document (or error document).
	Report []byte
	// Result is nil when the report was served from cache.
	Result *models.AuditResult
	Cached bool
}

// cacheEntry is what the pipeline stores in the report cache.
type cacheEntry struct {
	ID     string          `json:"id"`
	Report json.RawMessage `json:"report"`
}

// Pipeline processes raw messages. Every collaborator except the auditor
// is optional.
type Pipeline struct {
	auditor   *audit.Auditor
	cache     ReportCache
	history   history.Store
	publisher EventPublisher
	observer  ExtractionObserver
	newID     func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithCache(c ReportCache) Option           { return func(p *Pipeline) { p.cache = c } }
func WithHistory(s history.Store) Option       { return func(p *Pipeline) { p.history = s } }
func WithPublisher(pub EventPublisher) Option  { return func(p *Pipeline) { p.publisher = pub } }
func WithObserver(o ExtractionObserver) Option { return func(p *Pipeline) { p.observer = o } }
func withIDs(newID func() string) Option       { return func(p *Pipeline) { p.newID = newID } }

// New creates a pipeline around auditor.
func New(auditor *audit.Auditor, opts ...Option) *Pipeline {
	p := &Pipeline{
		auditor: auditor,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process audits raw. The only error returned is *extract.MalformedMessageError;
// cache, history and queue failures are logged and skipped.
func (p *Pipeline) Process(ctx context.Context, source string, raw []byte) (*Outcome, error) {
	if out := p.lookup(ctx, raw); out != nil {
		slog.Info("serving cached report", "source", source, "audit_id", out.ID)
		return out, nil
	}

	msg, err := extract.Extract(raw)
	if err != nil {
		if p.observer != nil {
			p.observer.ExtractionFailed()
		}
		return nil, err
	}

	result := p.auditor.Audit(models.NewThread(msg))

	data, err := report.Encode(result)
	if err != nil {
		// The error document is returned to the caller but not persisted.
		return &Outcome{Report: data, Result: result}, nil
	}

	out := &Outcome{ID: p.newID(), Report: data, Result: result}
	p.record(ctx, source, out)
	p.publish(ctx, source, out)
	if !result.Degraded {
		p.store(ctx, raw, out)
	}
	return out, nil
}

func (p *Pipeline) lookup(ctx context.Context, raw []byte) *Outcome {
	if p.cache == nil {
		return nil
	}
	data, ok, err := p.cache.Get(ctx, raw)
	if err != nil {
		slog.Warn("report cache lookup failed, proceeding", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("discarding unreadable cache entry", "error", err)
		return nil
	}
	return &Outcome{ID: entry.ID, Report: entry.Report, Cached: true}
}

func (p *Pipeline) record(ctx context.Context, source string, out *Outcome) {
	if p.history == nil {
		return
	}
	ev := models.NewAuditEvent(out.ID, source, out.Result)
	err := p.history.Save(ctx, history.Record{
		ID:           out.ID,
		Source:       source,
		Subject:      ev.Subject,
		Sender:       ev.Sender,
		OverallScore: ev.OverallScore,
		PassedRules:  ev.PassedRules,
		FailedRules:  ev.FailedRules,
		Report:       out.Report,
		CreatedAt:    out.Result.Timestamp,
	})
	if err != nil {
		slog.Error("failed to save audit history", "audit_id", out.ID, "error", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, source string, out *Outcome) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishAuditCompleted(ctx, models.NewAuditEvent(out.ID, source, out.Result)); err != nil {
		slog.Error("failed to publish audit event", "audit_id", out.ID, "error", err)
	}
}

func (p *Pipeline) store(ctx context.Context, raw []byte, out *Outcome) {
	if p.cache == nil {
		return
	}
	entry, err := json.Marshal(cacheEntry{ID: out.ID, Report: out.Report})
	if err != nil {
		slog.Warn("failed to encode cache entry", "error", err)
		return
	}
	if err := p.cache.Put(ctx, raw, entry); err != nil {
		slog.Warn("failed to cache report", "audit_id", out.ID, "error", err)
	}
}

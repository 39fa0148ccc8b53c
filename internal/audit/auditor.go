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

// Package audit runs every registered rule against a thread and aggregates
// the outcomes into a scored, summarised AuditResult.
package audit

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/mailaudit/internal/models"
	"github.com/bcem/mailaudit/internal/rules"
)

// Recommendation sentences, one per failure category.
const (
	RecommendGreeting  = "Add a proper greeting to your email"
	RecommendTooShort  = "Your email is too short - provide more context"
	RecommendTooLong   = "Your email is too long - be more concise"
	RecommendVisual    = "Consider adding visual content to your email"
	RecommendAllPassed = "Great job! Your email meets all quality standards."
	RecommendTryAgain  = "Please try again or contact support if the issue persists."
)

// Observer is notified of every finished audit, including degraded ones.
type Observer interface {
	ObserveAudit(result *models.AuditResult, degraded bool)
}

// Auditor orchestrates a rule registry. It is safe for concurrent use.
type Auditor struct {
	registry *rules.Registry
	now      func() time.Time
	observer Observer
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) { a.now = now }
}

// WithObserver registers an observer for finished audits.
func WithObserver(o Observer) Option {
	return func(a *Auditor) { a.observer = o }
}

// New creates an Auditor over registry.
func New(registry *rules.Registry, opts ...Option) *Auditor {
	a := &Auditor{
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit evaluates thread and never panics: an unexpected failure while
// aggregating yields a degraded result instead.
func (a *Auditor) Audit(thread *models.Thread) *models.AuditResult {
	slog.Info("starting audit", "messages", thread.Len(), "subject", thread.Subject())

	result, err := a.run(thread)
	if err != nil {
		slog.Error("audit failed", "error", err)
		result = a.degraded(thread, err)
	} else {
		slog.Info("audit complete",
			"overall_score", result.OverallScore,
			"passed", result.Statistics.PassedRules,
			"failed", result.Statistics.FailedRules,
		)
	}

	if a.observer != nil {
		a.observer.ObserveAudit(result, result.Degraded)
	}
	return result
}

func (a *Auditor) run(thread *models.Thread) (result *models.AuditResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%v", r)
		}
	}()

	results := a.registry.ExecuteAll(thread)
	stats := computeStatistics(results)

	return &models.AuditResult{
		Timestamp:       a.now().UTC(),
		OverallScore:    overallScore(results),
		Summary:         summarize(stats),
		Recommendations: recommend(results),
		RuleResults:     results,
		Statistics:      stats,
		Thread:          thread,
	}, nil
}

func (a *Auditor) degraded(thread *models.Thread, err error) *models.AuditResult {
	return &models.AuditResult{
		Timestamp:       a.now().UTC(),
		OverallScore:    0,
		Summary:         fmt.Sprintf("Audit failed: %v", err),
		Recommendations: []string{RecommendTryAgain},
		RuleResults:     []models.RuleResult{},
		Statistics:      models.Statistics{},
		Degraded:        true,
		Thread:          thread,
	}
}

func overallScore(results []models.RuleResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var total float64
	for _, r := range results {
		total += r.Score
	}
	return total / float64(len(results))
}

func computeStatistics(results []models.RuleResult) models.Statistics {
	stats := models.Statistics{TotalRules: len(results)}
	for _, r := range results {
		if r.Passed() {
			stats.PassedRules++
		}
	}
	stats.FailedRules = stats.TotalRules - stats.PassedRules
	if stats.TotalRules > 0 {
		stats.PassRate = float64(stats.PassedRules) / float64(stats.TotalRules)
	}
	return stats
}

// QualityLabel maps a pass rate onto a coarse quality grade.
func QualityLabel(passRate float64) string {
	switch {
	case passRate >= 0.8:
		return "excellent"
	case passRate >= 0.6:
		return "good"
	case passRate >= 0.4:
		return "fair"
	default:
		return "poor"
	}
}

func summarize(stats models.Statistics) string {
	return fmt.Sprintf("Email quality is %s. %d/%d rules passed (%.1f%%).",
		QualityLabel(stats.PassRate), stats.PassedRules, stats.TotalRules, stats.PassRate*100)
}

// recommend emits one sentence per failure category, in the order the
// categories are first seen.
func recommend(results []models.RuleResult) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Passed() {
			continue
		}
		rec := classify(r)
		if rec == "" || seen[rec] {
			continue
		}
		seen[rec] = true
		out = append(out, rec)
	}
	if len(out) == 0 {
		out = append(out, RecommendAllPassed)
	}
	return out
}

func classify(r models.RuleResult) string {
	name := strings.ToLower(r.RuleName)
	justification := strings.ToLower(r.Justification)

	switch {
	case strings.Contains(name, "greeting"):
		return RecommendGreeting
	case strings.Contains(name, "length"):
		if strings.Contains(justification, "short") {
			return RecommendTooShort
		}
		if strings.Contains(justification, "long") {
			return RecommendTooLong
		}
		return ""
	case strings.Contains(name, "attachment"):
		return RecommendVisual
	default:
		return ""
	}
}

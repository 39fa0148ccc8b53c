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

// Package metrics exposes Prometheus collectors for audit outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bcem/mailaudit/internal/models"
)

// Outcome label values for mailaudit_audits_total.
const (
	OutcomeCompleted = "completed"
	OutcomeDegraded  = "degraded"
)

// Metrics records audit activity. It satisfies audit.Observer.
type Metrics struct {
	audits             *prometheus.CounterVec
	ruleResults        *prometheus.CounterVec
	overallScore       prometheus.Histogram
	extractionFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		audits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailaudit_audits_total",
			Help: "Audits finished, by outcome.",
		}, []string{"outcome"}),
		ruleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailaudit_rule_results_total",
			Help: "Rule verdicts, by rule and status.",
		}, []string{"rule", "status"}),
		overallScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailaudit_overall_score",
			Help:    "Overall score of completed audits.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailaudit_extraction_failures_total",
			Help: "Submitted messages rejected as malformed.",
		}),
	}
	reg.MustRegister(m.audits, m.ruleResults, m.overallScore, m.extractionFailures)
	return m
}

// ObserveAudit records one finished audit.
func (m *Metrics) ObserveAudit(result *models.AuditResult, degraded bool) {
	if degraded {
		m.audits.WithLabelValues(OutcomeDegraded).Inc()
		return
	}
	m.audits.WithLabelValues(OutcomeCompleted).Inc()
	m.overallScore.Observe(result.OverallScore)
	for _, r := range result.RuleResults {
		m.ruleResults.WithLabelValues(r.RuleName, r.Status.String()).Inc()
	}
}

// ExtractionFailed records a malformed submission.
func (m *Metrics) ExtractionFailed() {
	m.extractionFailures.Inc()
}

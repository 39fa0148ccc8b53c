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

package models

import "time"

// AuditEvent announces a finished audit to downstream consumers.
type AuditEvent struct {
	AuditID      string    `json:"audit_id"`
	Source       string    `json:"source"`
	Subject      string    `json:"subject"`
	Sender       string    `json:"sender"`
	OverallScore float64   `json:"overall_score"`
	PassedRules  int       `json:"passed_rules"`
	FailedRules  int       `json:"failed_rules"`
	AuditedAt    time.Time `json:"audited_at"`
}

// NewAuditEvent summarises result under id.
func NewAuditEvent(id, source string, result *AuditResult) *AuditEvent {
	ev := &AuditEvent{
		AuditID:      id,
		Source:       source,
		OverallScore: result.OverallScore,
		PassedRules:  result.Statistics.PassedRules,
		FailedRules:  result.Statistics.FailedRules,
		AuditedAt:    result.Timestamp,
	}
	if first := result.Thread.First(); first != nil {
		ev.Subject = first.Subject()
		ev.Sender = first.Sender()
	}
	return ev
}

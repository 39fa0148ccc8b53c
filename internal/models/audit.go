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

import (
	"fmt"
	"time"
)

// RuleStatus is the verdict of a single rule.
type RuleStatus int

const (
	StatusFail RuleStatus = iota
	StatusPass
)

func (s RuleStatus) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as "pass" or "fail".
func (s RuleStatus) MarshalText() ([]byte, error) {
	switch s {
	case StatusPass, StatusFail:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid rule status %d", int(s))
	}
}

// UnmarshalText accepts "pass" or "fail".
func (s *RuleStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pass":
		*s = StatusPass
	case "fail":
		*s = StatusFail
	default:
		return fmt.Errorf("invalid rule status %q", text)
	}
	return nil
}

// RuleResult is the outcome of evaluating one rule against a thread.
type RuleResult struct {
	RuleName      string         `json:"rule_name"`
	Status        RuleStatus     `json:"status"`
	Score         float64        `json:"score"`
	Justification string         `json:"justification"`
	Details       map[string]any `json:"details"`
}

// Passed reports whether the rule passed.
func (r RuleResult) Passed() bool { return r.Status == StatusPass }

// Statistics summarises pass/fail counts across all rule results.
type Statistics struct {
	TotalRules  int     `json:"total_rules"`
	PassedRules int     `json:"passed_rules"`
	FailedRules int     `json:"failed_rules"`
	PassRate    float64 `json:"pass_rate"`
}

// AuditResult aggregates every rule outcome for one thread.
type AuditResult struct {
	Timestamp       time.Time
	OverallScore    float64
	Summary         string
	Recommendations []string
	RuleResults     []RuleResult
	Statistics      Statistics

	// Degraded marks a placeholder result produced when the audit itself
	// failed rather than any rule.
	Degraded bool

	// Thread is the audited input, kept for downstream consumers.
	Thread *Thread
}

// Passed returns the results with a PASS status.
func (a *AuditResult) Passed() []RuleResult {
	return a.filter(StatusPass)
}

// Failed returns the results with a FAIL status.
func (a *AuditResult) Failed() []RuleResult {
	return a.filter(StatusFail)
}

func (a *AuditResult) filter(status RuleStatus) []RuleResult {
	var out []RuleResult
	for _, r := range a.RuleResults {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

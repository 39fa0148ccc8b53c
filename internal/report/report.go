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

// Package report flattens an AuditResult into the stable document returned
// to clients.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bcem/mailaudit/internal/models"
)

// ErrorTitle is the fixed error field of an ErrorDocument.
const ErrorTitle = "Failed to generate report"

// Document is the serialised audit report.
type Document struct {
	AuditTimestamp  string             `json:"audit_timestamp"`
	OverallScore    float64            `json:"overall_score"`
	Summary         string             `json:"summary"`
	Recommendations []string           `json:"recommendations"`
	RuleResults     []RuleDocument     `json:"rule_results"`
	Statistics      StatisticsDocument `json:"statistics"`
}

type RuleDocument struct {
	RuleName      string         `json:"rule_name"`
	Status        string         `json:"status"`
	Score         float64        `json:"score"`
	Justification string         `json:"justification"`
	Details       map[string]any `json:"details"`
}

type StatisticsDocument struct {
	TotalRules  int     `json:"total_rules"`
	PassedRules int     `json:"passed_rules"`
	FailedRules int     `json:"failed_rules"`
	PassRate    float64 `json:"pass_rate"`
}

// ErrorDocument replaces a Document when formatting fails.
type ErrorDocument struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Format returns a *Document for result, or an *ErrorDocument if the result
// cannot be represented.
func Format(result *models.AuditResult) (doc any) {
	defer func() {
		if r := recover(); r != nil {
			doc = failure(fmt.Errorf("%v", r))
		}
	}()

	d, err := build(result)
	if err != nil {
		return failure(err)
	}
	return d
}

// Render formats result and encodes it as JSON. It always returns a valid
// JSON object.
func Render(result *models.AuditResult) []byte {
	data, _ := Encode(result)
	return data
}

// Encode is Render that also reports failure: when the returned error is
// non-nil the bytes hold the encoded ErrorDocument.
func Encode(result *models.AuditResult) ([]byte, error) {
	doc := Format(result)
	if ed, ok := doc.(*ErrorDocument); ok {
		data, _ := json.Marshal(ed)
		return data, errors.New(ed.Message)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		err = fmt.Errorf("encode report: %w", err)
		data, _ = json.Marshal(failure(err))
		return data, err
	}
	return data, nil
}

func build(result *models.AuditResult) (*Document, error) {
	if result == nil {
		return nil, errors.New("nil audit result")
	}
	if !finite(result.OverallScore) || !finite(result.Statistics.PassRate) {
		return nil, fmt.Errorf("non-finite score (overall=%v, pass_rate=%v)",
			result.OverallScore, result.Statistics.PassRate)
	}

	rulesOut := make([]RuleDocument, 0, len(result.RuleResults))
	for _, r := range result.RuleResults {
		if !finite(r.Score) {
			return nil, fmt.Errorf("rule %s: non-finite score", r.RuleName)
		}
		rulesOut = append(rulesOut, RuleDocument{
			RuleName:      r.RuleName,
			Status:        r.Status.String(),
			Score:         r.Score,
			Justification: r.Justification,
			Details:       r.Details,
		})
	}

	recs := make([]string, len(result.Recommendations))
	copy(recs, result.Recommendations)

	return &Document{
		AuditTimestamp:  result.Timestamp.UTC().Format(time.RFC3339Nano),
		OverallScore:    result.OverallScore,
		Summary:         result.Summary,
		Recommendations: recs,
		RuleResults:     rulesOut,
		Statistics: StatisticsDocument{
			TotalRules:  result.Statistics.TotalRules,
			PassedRules: result.Statistics.PassedRules,
			FailedRules: result.Statistics.FailedRules,
			PassRate:    result.Statistics.PassRate,
		},
	}, nil
}

func failure(err error) *ErrorDocument {
	slog.Error("report formatting failed", "error", err)
	return &ErrorDocument{Error: ErrorTitle, Message: err.Error()}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

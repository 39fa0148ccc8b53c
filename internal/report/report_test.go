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

package report

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/mailaudit/internal/models"
)

func sampleResult() *models.AuditResult {
	return &models.AuditResult{
		Timestamp:       time.Date(2026, 3, 1, 9, 30, 0, 123000000, time.FixedZone("CET", 3600)),
		OverallScore:    2.0 / 3.0,
		Summary:         "Email quality is good. 2/3 rules passed (66.7%).",
		Recommendations: []string{"Consider adding visual content to your email"},
		RuleResults: []models.RuleResult{
			{RuleName: "GreetingRule", Status: models.StatusPass, Score: 1, Justification: "Email contains appropriate greeting", Details: map[string]any{"matched": "hello"}},
			{RuleName: "LengthRule", Status: models.StatusPass, Score: 1, Justification: "Email length is appropriate (120 characters)"},
			{RuleName: "AttachmentRule", Status: models.StatusFail, Score: 0, Justification: "No attachments found"},
		},
		Statistics: models.Statistics{TotalRules: 3, PassedRules: 2, FailedRules: 1, PassRate: 2.0 / 3.0},
	}
}

func TestFormat_Document(t *testing.T) {
	doc, ok := Format(sampleResult()).(*Document)
	require.True(t, ok, "expected *Document")

	assert.Equal(t, "2026-03-01T08:30:00.123Z", doc.AuditTimestamp)
	assert.InDelta(t, 0.6667, doc.OverallScore, 1e-3)
	require.Len(t, doc.RuleResults, 3)
	assert.Equal(t, "pass", doc.RuleResults[0].Status)
	assert.Equal(t, "fail", doc.RuleResults[2].Status)
	assert.Equal(t, "hello", doc.RuleResults[0].Details["matched"])
	assert.Equal(t, StatisticsDocument{TotalRules: 3, PassedRules: 2, FailedRules: 1, PassRate: 2.0 / 3.0}, doc.Statistics)
}

func TestRender_FieldNames(t *testing.T) {
	var got map[string]any
	require.NoError(t, json.Unmarshal(Render(sampleResult()), &got))

	for _, key := range []string{"audit_timestamp", "overall_score", "summary", "recommendations", "rule_results", "statistics"} {
		assert.Contains(t, got, key)
	}

	rule := got["rule_results"].([]any)[1].(map[string]any)
	assert.Equal(t, "LengthRule", rule["rule_name"])
	assert.Nil(t, rule["details"], "absent details encode as null")

	stats := got["statistics"].(map[string]any)
	assert.EqualValues(t, 3, stats["total_rules"])
}

func TestRender_Idempotent(t *testing.T) {
	res := sampleResult()
	assert.Equal(t, string(Render(res)), string(Render(res)))
}

func TestFormat_Failures(t *testing.T) {
	nan := sampleResult()
	nan.OverallScore = math.NaN()

	badRule := sampleResult()
	badRule.RuleResults[1].Score = math.Inf(1)

	unencodable := sampleResult()
	unencodable.RuleResults[0].Details = map[string]any{"ch": make(chan int)}

	tests := []struct {
		name   string
		result *models.AuditResult
	}{
		{"nil result", nil},
		{"nan score", nan},
		{"infinite rule score", badRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, ok := Format(tt.result).(*ErrorDocument)
			require.True(t, ok, "expected *ErrorDocument")
			assert.Equal(t, ErrorTitle, doc.Error)
			assert.NotEmpty(t, doc.Message)
		})
	}

	t.Run("encode failure", func(t *testing.T) {
		data, err := Encode(unencodable)
		require.Error(t, err)

		var got ErrorDocument
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, ErrorTitle, got.Error)
		assert.Contains(t, got.Message, "encode report")
		assert.Equal(t, string(data), string(Render(unencodable)))
	})
}

func TestEncode_Success(t *testing.T) {
	data, err := Encode(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, string(Render(sampleResult())), string(data))
}

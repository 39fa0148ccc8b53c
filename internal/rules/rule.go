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

// Package rules defines the quality rules an email thread is audited
// against, the wrapper that isolates a rule's failures from the rest of the
// batch, and the registry that holds every known rule.
package rules

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/bcem/mailaudit/internal/models"
)

// Rule evaluates a thread and produces a verdict. Implementations must be
// stateless and deterministic: the registry shares one instance across
// concurrent audits.
type Rule interface {
	Name() string
	Description() string
	// Weight is reserved for weighted aggregation; the auditor currently
	// averages scores without it.
	Weight() float64
	Evaluate(thread *models.Thread) (models.RuleResult, error)
}

// noMessages is the shared empty-thread justification.
const noMessages = "No messages in thread"

// Run evaluates rule against thread and never fails: a returned error or a
// panic inside Evaluate becomes a FAIL result with score 0.
func Run(rule Rule, thread *models.Thread) (result models.RuleResult) {
	name := rule.Name()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("rule panicked", "rule", name, "panic", r)
			result = evaluationFailed(name, fmt.Errorf("%v", r))
		}
	}()

	result, err := rule.Evaluate(thread)
	if err != nil {
		slog.Error("rule evaluation failed", "rule", name, "error", err)
		return evaluationFailed(name, err)
	}

	result.RuleName = name
	if math.IsNaN(result.Score) || result.Score < 0 || result.Score > 1 {
		slog.Warn("rule score out of range, clamping", "rule", name, "score", result.Score)
		result.Score = clamp(result.Score)
	}

	slog.Debug("rule evaluated",
		"rule", name,
		"status", result.Status.String(),
		"justification", result.Justification,
	)
	return result
}

func evaluationFailed(name string, err error) models.RuleResult {
	return models.RuleResult{
		RuleName:      name,
		Status:        models.StatusFail,
		Score:         0,
		Justification: fmt.Sprintf("Rule evaluation failed: %v", err),
	}
}

func clamp(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// firstMessage returns the first message of the thread, or a ready-made
// FAIL result when the thread is empty. Every shipped rule starts with it.
func firstMessage(name string, thread *models.Thread) (*models.Message, *models.RuleResult) {
	if first := thread.First(); first != nil {
		return first, nil
	}
	res := fail(name, noMessages, nil)
	return nil, &res
}

func pass(name, justification string, details map[string]any) models.RuleResult {
	return models.RuleResult{
		RuleName:      name,
		Status:        models.StatusPass,
		Score:         1,
		Justification: justification,
		Details:       details,
	}
}

func fail(name, justification string, details map[string]any) models.RuleResult {
	return models.RuleResult{
		RuleName:      name,
		Status:        models.StatusFail,
		Score:         0,
		Justification: justification,
		Details:       details,
	}
}

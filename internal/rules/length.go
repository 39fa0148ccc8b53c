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

package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bcem/mailaudit/internal/models"
)

const (
	minBodyLength = 50
	maxBodyLength = 2000
)

// LengthRule checks that the trimmed plain-text body of the first message
// is between 50 and 2000 characters inclusive.
type LengthRule struct{}

func (LengthRule) Name() string        { return "LengthRule" }
func (LengthRule) Description() string { return "Checks email length appropriateness" }
func (LengthRule) Weight() float64     { return 1.0 }

func (r LengthRule) Evaluate(thread *models.Thread) (models.RuleResult, error) {
	msg, empty := firstMessage(r.Name(), thread)
	if empty != nil {
		return *empty, nil
	}

	length := utf8.RuneCountInString(strings.TrimSpace(msg.PlainText()))
	details := map[string]any{
		"length":     length,
		"min_length": minBodyLength,
		"max_length": maxBodyLength,
	}

	switch {
	case length < minBodyLength:
		return fail(r.Name(), "Email is too short", details), nil
	case length > maxBodyLength:
		return fail(r.Name(), "Email is too long", details), nil
	default:
		return pass(r.Name(), fmt.Sprintf("Email length is appropriate (%d characters)", length), details), nil
	}
}

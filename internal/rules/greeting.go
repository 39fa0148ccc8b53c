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
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bcem/mailaudit/internal/models"
)

// greetingWindow is how many leading characters of the body are searched.
const greetingWindow = 200

var greetingTokens = []string{
	"dear", "hello", "hi", "hey",
	"good morning", "good afternoon", "good evening",
	"greetings", "salutations",
}

// GreetingRule passes when the opening of the first message contains a
// greeting. Matching is a plain substring search, so "hi" also matches
// inside "this".
type GreetingRule struct{}

func (GreetingRule) Name() string        { return "GreetingRule" }
func (GreetingRule) Description() string { return "Checks if email contains a greeting" }
func (GreetingRule) Weight() float64     { return 1.0 }

func (r GreetingRule) Evaluate(thread *models.Thread) (models.RuleResult, error) {
	msg, empty := firstMessage(r.Name(), thread)
	if empty != nil {
		return *empty, nil
	}

	opening := leadingRunes(cases.Lower(language.Und).String(msg.PlainText()), greetingWindow)
	for _, token := range greetingTokens {
		if strings.Contains(opening, token) {
			return pass(r.Name(), "Email contains appropriate greeting", map[string]any{
				"matched": token,
			}), nil
		}
	}

	return fail(r.Name(), "Email lacks appropriate greeting", nil), nil
}

func leadingRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

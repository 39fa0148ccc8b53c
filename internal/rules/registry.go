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
	"log/slog"

	"github.com/bcem/mailaudit/internal/models"
)

// Registry holds the rules an audit runs, in registration order. It is built
// once at startup and never mutated afterwards, so it is safe to share.
type Registry struct {
	rules  []Rule
	byName map[string]Rule
}

// NewRegistry registers rules in the order given. Rule names must be unique.
func NewRegistry(rules ...Rule) (*Registry, error) {
	reg := &Registry{
		rules:  make([]Rule, 0, len(rules)),
		byName: make(map[string]Rule, len(rules)),
	}
	for _, rule := range rules {
		name := rule.Name()
		if name == "" {
			return nil, fmt.Errorf("register rule: empty name (%T)", rule)
		}
		if _, dup := reg.byName[name]; dup {
			return nil, fmt.Errorf("register rule %q: duplicate name", name)
		}
		reg.rules = append(reg.rules, rule)
		reg.byName[name] = rule
		slog.Debug("registered rule", "rule", name)
	}
	return reg, nil
}

// Default returns a registry holding every shipped rule. New rules are added
// here.
func Default() *Registry {
	reg, err := NewRegistry(
		GreetingRule{},
		LengthRule{},
		AttachmentRule{},
	)
	if err != nil {
		panic(err)
	}
	return reg
}

// Get looks up a rule by name.
func (r *Registry) Get(name string) (Rule, bool) {
	rule, ok := r.byName[name]
	return rule, ok
}

// Rules returns the registered rules in execution order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Names returns the registered rule names in execution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name()
	}
	return names
}

// Len returns the number of registered rules.
func (r *Registry) Len() int { return len(r.rules) }

// Execute runs a single rule by name. An unknown name produces a FAIL result
// rather than an error.
func (r *Registry) Execute(name string, thread *models.Thread) models.RuleResult {
	rule, ok := r.Get(name)
	if !ok {
		return models.RuleResult{
			RuleName:      name,
			Status:        models.StatusFail,
			Score:         0,
			Justification: fmt.Sprintf("Rule '%s' not found", name),
		}
	}
	return Run(rule, thread)
}

// ExecuteAll runs every registered rule and returns one result per rule.
func (r *Registry) ExecuteAll(thread *models.Thread) []models.RuleResult {
	results := make([]models.RuleResult, 0, len(r.rules))
	for _, rule := range r.rules {
		results = append(results, Run(rule, thread))
	}
	return results
}

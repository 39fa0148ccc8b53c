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

	"github.com/bcem/mailaudit/internal/models"
)

// AttachmentRule passes when the first message carries at least one image.
type AttachmentRule struct{}

func (AttachmentRule) Name() string        { return "AttachmentRule" }
func (AttachmentRule) Description() string { return "Checks for image attachments" }
func (AttachmentRule) Weight() float64     { return 1.0 }

func (r AttachmentRule) Evaluate(thread *models.Thread) (models.RuleResult, error) {
	msg, empty := firstMessage(r.Name(), thread)
	if empty != nil {
		return *empty, nil
	}

	if len(msg.Attachments) == 0 {
		return fail(r.Name(), "No attachments found", map[string]any{"attachments": 0, "images": 0}), nil
	}

	images := 0
	for _, att := range msg.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			images++
		}
	}
	details := map[string]any{
		"attachments": len(msg.Attachments),
		"images":      images,
	}

	if images == 0 {
		return fail(r.Name(), "No image attachments found", details), nil
	}
	return pass(r.Name(), "At least one image attachment found", details), nil
}

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

// Package models defines the data structures shared across the audit service.
package models

import (
	"sort"
	"strings"
	"time"
)

// Attachment describes a file carried by a message. Only metadata is kept;
// the payload itself is discarded after its size is measured.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	ContentID   string `json:"content_id,omitempty"`
}

// Headers is a case-insensitive header map. Keys are stored lower case.
type Headers map[string]string

// Get returns the header value for name, or "" if absent.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Has reports whether the header is present.
func (h Headers) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// Content holds the decoded text bodies of a message. Both buffers always
// exist; either may be empty.
type Content struct {
	PlainText string `json:"plain_text"`
	HTML      string `json:"html"`
}

// Metadata holds values derived from headers during extraction.
type Metadata struct {
	Date *time.Time `json:"parsed_date"`
}

// Message is a single extracted email.
type Message struct {
	Headers     Headers      `json:"headers"`
	Content     Content      `json:"content"`
	Metadata    Metadata     `json:"metadata"`
	Attachments []Attachment `json:"attachments"`
}

func (m *Message) Subject() string   { return m.Headers.Get("subject") }
func (m *Message) Sender() string    { return m.Headers.Get("from") }
func (m *Message) Recipient() string { return m.Headers.Get("to") }
func (m *Message) MessageID() string { return m.Headers.Get("message-id") }
func (m *Message) PlainText() string { return m.Content.PlainText }
func (m *Message) HTML() string      { return m.Content.HTML }

// Date returns the parsed Date header, or nil if it was missing or invalid.
func (m *Message) Date() *time.Time { return m.Metadata.Date }

// Thread is the unit an audit runs against. An empty thread is valid input.
type Thread struct {
	Messages []*Message `json:"messages"`
}

// NewThread builds a thread from messages in the order given.
func NewThread(messages ...*Message) *Thread {
	return &Thread{Messages: messages}
}

// Len returns the number of messages in the thread.
func (t *Thread) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Messages)
}

// First returns the first message, or nil for an empty thread.
func (t *Thread) First() *Message {
	if t.Len() == 0 {
		return nil
	}
	return t.Messages[0]
}

// Last returns the last message, or nil for an empty thread.
func (t *Thread) Last() *Message {
	if t.Len() == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}

// Subject returns the subject of the first message.
func (t *Thread) Subject() string {
	if first := t.First(); first != nil {
		return first.Subject()
	}
	return ""
}

// Participants returns every distinct sender and recipient in the thread,
// sorted.
func (t *Thread) Participants() []string {
	seen := make(map[string]struct{})
	if t != nil {
		for _, m := range t.Messages {
			if s := m.Sender(); s != "" {
				seen[s] = struct{}{}
			}
			if r := m.Recipient(); r != "" {
				seen[r] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

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

// Package extract decodes raw RFC 5322 / MIME bytes into a models.Message.
//
// Extraction is best effort: only a message whose top-level header block
// cannot be read at all is rejected. A part that fails to decode is logged
// and skipped so the rest of the message still contributes.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/bcem/mailaudit/internal/models"
)

// HeaderAllowlist is the fixed set of headers copied into a Message, in
// lookup order.
var HeaderAllowlist = []string{
	// essential
	"from", "to", "subject", "date", "cc", "bcc", "reply-to",
	// additional
	"message-id", "in-reply-to", "references", "content-type",
}

// MalformedMessageError is returned when the top-level envelope cannot be
// parsed. It is the only error Extract returns.
type MalformedMessageError struct {
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// ExtractFile reads an .eml file from disk and extracts it.
func ExtractFile(path string) (*models.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message file %s: %w", path, err)
	}
	return Extract(data)
}

// Extract parses raw message bytes into a structured Message.
func Extract(raw []byte) (*models.Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &MalformedMessageError{Err: fmt.Errorf("empty message")}
	}

	// A header-only message has no blank separator line; the header reader
	// needs one to terminate cleanly. The caller's buffer is left untouched.
	if !bytes.Contains(raw, []byte("\n\n")) && !bytes.Contains(raw, []byte("\r\n\r\n")) {
		trimmed := bytes.TrimRight(raw, "\r\n")
		buf := make([]byte, 0, len(trimmed)+4)
		buf = append(buf, trimmed...)
		raw = append(buf, "\r\n\r\n"...)
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if entity == nil {
		return nil, &MalformedMessageError{Err: err}
	}
	if err != nil {
		// Unknown top-level charset or transfer encoding: the entity is
		// still readable.
		slog.Warn("message envelope partially decodable", "error", err)
	}

	msg := &models.Message{
		Headers:     extractHeaders(entity.Header),
		Metadata:    extractMetadata(entity.Header),
		Attachments: []models.Attachment{},
	}

	w := &walker{msg: msg, rootErr: err}
	w.walk(entity)

	slog.Debug("extracted message",
		"subject", msg.Subject(),
		"plain_len", len(msg.Content.PlainText),
		"html_len", len(msg.Content.HTML),
		"attachments", len(msg.Attachments),
	)

	return msg, nil
}

func extractHeaders(h message.Header) models.Headers {
	headers := make(models.Headers)
	for _, key := range HeaderAllowlist {
		raw := h.Get(key)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		value, err := h.Text(key)
		if err != nil {
			value = raw
		}
		headers[key] = value
	}
	return headers
}

func extractMetadata(h message.Header) models.Metadata {
	var meta models.Metadata
	if h.Get("Date") == "" {
		return meta
	}

	mh := mail.Header{Header: h}
	date, err := mh.Date()
	if err != nil {
		slog.Warn("unparsable Date header", "date", h.Get("Date"), "error", err)
		return meta
	}
	meta.Date = &date
	return meta
}

// walker accumulates content and attachments while go-message walks the
// part tree. The tree is consumed as it is walked, so both concerns are
// handled in a single pass. Embedded message/rfc822 parts are walked with a
// child walker sharing the same Message.
type walker struct {
	msg *models.Message
	// rootErr is the decode error of the entity being walked; go-message
	// only forwards errors for nested parts.
	rootErr error
	prefix  []int
}

func (w *walker) walk(entity *message.Entity) {
	if err := entity.Walk(w.visit); err != nil {
		slog.Warn("message structure truncated, keeping parts read so far",
			"part", partPath(w.prefix),
			"error", err,
			"attachments", len(w.msg.Attachments),
		)
	}
}

func (w *walker) visit(path []int, part *message.Entity, err error) error {
	if len(path) == 0 {
		err = w.rootErr
	}
	path = append(append([]int(nil), w.prefix...), path...)

	mediaType, params, ctErr := part.Header.ContentType()
	if ctErr != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		return nil
	}
	if mediaType == "message/rfc822" {
		w.visitEmbedded(path, part, params)
		return nil
	}

	filename := partFilename(part.Header, params)
	isText := mediaType == "text/plain" || mediaType == "text/html"
	isAttachment := strings.HasPrefix(mediaType, "image/") || filename != ""
	if !isText && !isAttachment {
		return nil
	}

	body, readErr := readPart(part, err)
	if readErr != nil {
		slog.Warn("failed to decode MIME part",
			"part", partPath(path),
			"content_type", mediaType,
			"error", readErr,
		)
	}

	if isText && readErr == nil {
		text := strings.ToValidUTF8(string(body), "�")
		if mediaType == "text/plain" {
			w.msg.Content.PlainText += text
		} else {
			w.msg.Content.HTML += text
		}
	}

	if isAttachment {
		if filename == "" {
			filename = fmt.Sprintf("attachment_%d", len(w.msg.Attachments))
		}
		size := 0
		if readErr == nil {
			size = len(body)
		}
		w.msg.Attachments = append(w.msg.Attachments, models.Attachment{
			Filename:    filename,
			ContentType: mediaType,
			Size:        size,
			ContentID:   part.Header.Get("Content-Id"),
		})
	}

	return nil
}

// visitEmbedded walks a forwarded message in place. A named embedded message
// also counts as an attachment; its payload is not a leaf so its size is 0.
func (w *walker) visitEmbedded(path []int, part *message.Entity, params map[string]string) {
	if filename := partFilename(part.Header, params); filename != "" {
		w.msg.Attachments = append(w.msg.Attachments, models.Attachment{
			Filename:    filename,
			ContentType: "message/rfc822",
			ContentID:   part.Header.Get("Content-Id"),
		})
	}

	inner, err := message.Read(part.Body)
	if inner == nil {
		slog.Warn("skipping unreadable embedded message", "part", partPath(path), "error", err)
		return
	}
	child := &walker{msg: w.msg, rootErr: err, prefix: path}
	child.walk(inner)
}

// readPart reads a leaf body. An unknown transfer encoding leaves the payload
// undecodable; an unknown charset still yields usable raw bytes.
func readPart(part *message.Entity, walkErr error) ([]byte, error) {
	if walkErr != nil && message.IsUnknownEncoding(walkErr) {
		return nil, walkErr
	}
	if walkErr != nil {
		slog.Debug("unknown charset, using raw bytes", "error", walkErr)
	}

	body, err := io.ReadAll(part.Body)
	if err != nil {
		return nil, fmt.Errorf("read part body: %w", err)
	}
	return body, nil
}

// partFilename returns the explicit filename of a part: the
// Content-Disposition filename, falling back to the Content-Type name.
func partFilename(h message.Header, ctParams map[string]string) string {
	if _, dispParams, err := h.ContentDisposition(); err == nil {
		if name := strings.TrimSpace(dispParams["filename"]); name != "" {
			return name
		}
	}
	return strings.TrimSpace(ctParams["name"])
}

func partPath(path []int) string {
	if len(path) == 0 {
		return "root"
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprint(p + 1)
	}
	return strings.Join(parts, ".")
}

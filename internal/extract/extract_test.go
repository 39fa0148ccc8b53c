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

package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crlf converts a readable fixture into wire format.
func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const mixedMessage = `From: Alice Example <alice@example.com>
To: team@example.com
Cc: bob@example.com
Subject: =?UTF-8?Q?Quarterly_update_=E2=9C=93?=
Date: Mon, 02 Jan 2006 15:04:05 -0700
Message-ID: <abc123@example.com>
X-Mailer: not-in-allowlist
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Hi team, the numbers are in =E2=80=94 see the chart.
--inner
Content-Type: text/html; charset=utf-8

<p>Hi team, the numbers are in.</p>
--inner--
--outer
Content-Type: image/png
Content-Transfer-Encoding: base64
Content-Disposition: inline
Content-ID: <chart@example.com>

iVBORw0KGgo=
--outer
Content-Type: application/pdf; name="report.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--outer--
`

func TestExtract_MultipartMessage(t *testing.T) {
	msg, err := Extract(crlf(mixedMessage))
	require.NoError(t, err)

	assert.Equal(t, "Alice Example <alice@example.com>", msg.Sender())
	assert.Equal(t, "team@example.com", msg.Recipient())
	assert.Equal(t, "Quarterly update ✓", msg.Subject())
	assert.Equal(t, "bob@example.com", msg.Headers.Get("Cc"))
	assert.Equal(t, "<abc123@example.com>", msg.MessageID())
	assert.False(t, msg.Headers.Has("x-mailer"), "headers outside the allowlist must be dropped")
	assert.False(t, msg.Headers.Has("bcc"), "absent headers must be omitted")
	assert.Contains(t, msg.Headers.Get("content-type"), "multipart/mixed")

	assert.Equal(t, "Hi team, the numbers are in — see the chart.", msg.PlainText())
	assert.Equal(t, "<p>Hi team, the numbers are in.</p>", msg.HTML())

	require.NotNil(t, msg.Date())
	want := time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)
	assert.True(t, msg.Date().Equal(want), "date = %v, want %v", msg.Date(), want)

	require.Len(t, msg.Attachments, 2)

	img := msg.Attachments[0]
	assert.Equal(t, "attachment_0", img.Filename)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, 8, img.Size)
	assert.Equal(t, "<chart@example.com>", img.ContentID)

	pdf := msg.Attachments[1]
	assert.Equal(t, "report.pdf", pdf.Filename)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.Equal(t, 9, pdf.Size)
	assert.Empty(t, pdf.ContentID)
}

func TestExtract_ConcatenatesTextParts(t *testing.T) {
	raw := `Subject: two parts
Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: text/plain

first
--b
Content-Type: text/plain

second
--b--
`
	msg, err := Extract(crlf(raw))
	require.NoError(t, err)
	assert.Equal(t, "firstsecond", msg.PlainText())
	assert.Empty(t, msg.HTML())
	assert.Empty(t, msg.Attachments)
}

func TestExtract_BadPartDoesNotAbort(t *testing.T) {
	raw := `Subject: partially broken
Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: text/plain
Content-Transfer-Encoding: x-unknown

this part cannot be decoded
--b
Content-Type: text/plain
Content-Transfer-Encoding: base64

!!!not base64!!!
--b
Content-Type: text/plain

Hello, this part is fine.
--b
Content-Type: image/jpeg
Content-Transfer-Encoding: x-unknown
Content-Disposition: attachment; filename="photo.jpg"

garbage
--b--
`
	msg, err := Extract(crlf(raw))
	require.NoError(t, err)
	assert.Equal(t, "Hello, this part is fine.", msg.PlainText())

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "photo.jpg", msg.Attachments[0].Filename)
	assert.Equal(t, 0, msg.Attachments[0].Size, "undecodable payload must report size 0")
}

func TestExtract_CharsetDecoding(t *testing.T) {
	raw := "Subject: latin1\r\nContent-Type: text/plain; charset=iso-8859-1\r\n\r\nCaf\xe9 ouvert"
	msg, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Café ouvert", msg.PlainText())
}

func TestExtract_NoContentTypeDefaultsToPlainText(t *testing.T) {
	msg, err := Extract(crlf("From: a@example.com\nSubject: plain\n\nJust text.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Just text.\r\n", msg.PlainText())
	assert.Nil(t, msg.Date(), "missing Date header leaves metadata empty")
}

func TestExtract_UnparsableDate(t *testing.T) {
	msg, err := Extract(crlf("Subject: x\nDate: sometime last week\n\nbody\n"))
	require.NoError(t, err)
	assert.Nil(t, msg.Date())
	assert.Equal(t, "sometime last week", msg.Headers.Get("date"))
}

func TestExtract_HeaderOnly(t *testing.T) {
	msg, err := Extract([]byte("Subject: nothing else\r\nTo: x@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "nothing else", msg.Subject())
	assert.Empty(t, msg.PlainText())
	assert.NotNil(t, msg.Attachments)
}

func TestExtract_Malformed(t *testing.T) {
	tests := map[string][]byte{
		"empty":      nil,
		"whitespace": []byte(" \r\n\t"),
		"no header":  []byte("this is not an email at all\r\n\r\nbody"),
		"bad key":    []byte("Bad Key: value\r\n\r\nbody"),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			msg, err := Extract(raw)
			assert.Nil(t, msg)
			var malformed *MalformedMessageError
			require.True(t, errors.As(err, &malformed), "err = %v", err)
		})
	}
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.eml")
	require.NoError(t, os.WriteFile(path, crlf("Subject: from disk\n\nHello!\n"), 0o644))

	msg, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from disk", msg.Subject())

	_, err = ExtractFile(filepath.Join(t.TempDir(), "missing.eml"))
	assert.Error(t, err)
}

func TestExtract_HeaderOnlyLeavesInputUntouched(t *testing.T) {
	const text = "Subject: header only\nFrom: a@example.com\n"
	raw := make([]byte, len(text), len(text)+64)
	copy(raw, text)

	msg, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "header only", msg.Subject())
	assert.Equal(t, text, string(raw))
	assert.Equal(t, make([]byte, 64), raw[len(text):cap(raw)], "spare capacity must not be written")
}

const forwardedMessage = `From: carol@example.com
Subject: Fwd: photos
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: text/plain

See below.
--outer
Content-Type: message/rfc822

From: dave@example.com
Subject: photos
Content-Type: multipart/mixed; boundary="inner"

--inner
Content-Type: text/plain

Hello inner body
--inner
Content-Type: image/png
Content-Transfer-Encoding: base64

iVBORw0KGgo=
--inner--
--outer
Content-Type: message/rfc822
Content-Disposition: attachment; filename="original.eml"

Subject: attached

Attached text.
--outer--
`

func TestExtract_WalksEmbeddedMessages(t *testing.T) {
	msg, err := Extract(crlf(forwardedMessage))
	require.NoError(t, err)

	assert.Equal(t, "Fwd: photos", msg.Subject(), "outer headers win")
	assert.Equal(t, "See below.Hello inner bodyAttached text.", msg.PlainText())

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "attachment_0", msg.Attachments[0].Filename)
	assert.Equal(t, "image/png", msg.Attachments[0].ContentType)
	assert.Equal(t, 8, msg.Attachments[0].Size)
	assert.Equal(t, "original.eml", msg.Attachments[1].Filename)
	assert.Equal(t, "message/rfc822", msg.Attachments[1].ContentType)
	assert.Equal(t, 0, msg.Attachments[1].Size)
}

func TestExtract_SinglePartUnknownEncoding(t *testing.T) {
	raw := "Subject: odd encoding\r\nContent-Type: text/plain\r\nContent-Transfer-Encoding: x-unknown\r\n\r\nundecodable"
	msg, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "odd encoding", msg.Subject())
	assert.Empty(t, msg.PlainText(), "an undecodable root body is dropped like a nested one")
}

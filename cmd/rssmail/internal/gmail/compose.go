// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package gmail

import (
	"bytes"
	"errors"
	"mime"
	"mime/quotedprintable"

	"go.astrophena.name/rssmail/cmd/rssmail/internal/sender"
)

var errNoRecipient = errors.New("message has no recipient address")

// Compose renders msg as an RFC 5322 message with a quoted-printable UTF-8
// HTML body.
func Compose(msg sender.Message) ([]byte, error) {
	if msg.To.Address == "" {
		return nil, errNoRecipient
	}

	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k + ": " + v + "\r\n")
	}
	header("From", msg.From.String())
	header("To", msg.To.String())
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	w := quotedprintable.NewWriter(&buf)
	if _, err := w.Write([]byte(msg.HTML)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

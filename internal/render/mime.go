package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment is one file carried by a message, inline or attached.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is the content of one outbound email before MIME assembly.
type Message struct {
	From         string
	To           string
	Subject      string
	HTML         string
	InlineImages []Attachment // referenced from HTML as cid:image1..N
	Attachment   *Attachment  // optional single file attachment
}

// BuildRaw assembles the RFC 5322 raw message for m. Inline images get
// Content-ID headers image1..N in list order.
func BuildRaw(m *Message) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", encodeHeader(m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), domainOf(m.From))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(m.InlineImages) == 0 && m.Attachment == nil {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(m.HTML)
		buf.WriteString("\r\n")
		return buf.Bytes()
	}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	if len(m.InlineImages) > 0 {
		writeRelatedPart(mixed, m)
	} else {
		writeHTMLPart(mixed, m.HTML)
	}

	if m.Attachment != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", contentType(m.Attachment.Filename))
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", m.Attachment.Filename))
		part, _ := mixed.CreatePart(h)
		writeBase64(part, m.Attachment.Content)
	}

	mixed.Close()
	return buf.Bytes()
}

// writeRelatedPart writes a multipart/related part holding the HTML body and
// its inline images.
func writeRelatedPart(mixed *multipart.Writer, m *Message) {
	var related bytes.Buffer
	rw := multipart.NewWriter(&related)

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	part, _ := rw.CreatePart(htmlHeader)
	part.Write([]byte(m.HTML))

	for i, img := range m.InlineImages {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", contentType(img.Filename))
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-ID", fmt.Sprintf("<image%d>", i+1))
		h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.Filename))
		part, _ := rw.CreatePart(h)
		writeBase64(part, img.Content)
	}
	rw.Close()

	outer := textproto.MIMEHeader{}
	outer.Set("Content-Type", fmt.Sprintf("multipart/related; boundary=%q", rw.Boundary()))
	dst, _ := mixed.CreatePart(outer)
	dst.Write(related.Bytes())
}

func writeHTMLPart(mixed *multipart.Writer, html string) {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	part, _ := mixed.CreatePart(h)
	part.Write([]byte(html))
}

// writeBase64 writes data base64-encoded with 76-character lines.
func writeBase64(w io.Writer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		w.Write([]byte(encoded[:n]))
		w.Write([]byte("\r\n"))
		encoded = encoded[n:]
	}
}

// ContentType guesses a MIME type from the file extension, falling back to
// application/octet-stream.
func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// ContentType is the exported form used by the MSG91 payload builder.
func ContentType(filename string) string {
	return contentType(filename)
}

// encodeHeader RFC 2047-encodes a header value when it carries non-ASCII.
func encodeHeader(s string) string {
	return mime.QEncoding.Encode("utf-8", s)
}

func domainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "localhost"
	}
	return strings.ToLower(email[at+1:])
}

package loader

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

var (
	ErrEmptyDocument  = errors.New("document contains no text")
	ErrBinaryDocument = errors.New("document is not text")
)

func detectContentType(name, contentType string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			return mt
		}
	}
	if mt := mime.TypeByExtension(path.Ext(name)); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
	}
	return "text/plain"
}

// ReadDocument extracts plain text from a file's contents, picking the
// reader from its extension or content type.
func ReadDocument(name, contentType string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(name))
	ct := detectContentType(name, contentType)
	if ct == "text/plain" && ext == "" && len(data) > 0 {
		ct, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}

	var (
		text string
		err  error
	)
	switch {
	case ext == ".pdf" || ct == "application/pdf":
		text, err = readPDF(data)
	case ext == ".html" || ext == ".htm" || ct == "text/html":
		text, err = readHTML(data)
	default:
		sniffed, ok := isText(data)
		if !ok {
			return "", fmt.Errorf("failed to read '%s' (%s): %w", name, sniffed, ErrBinaryDocument)
		}
		text = readText(data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read '%s': %w", name, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("failed to read '%s': %w", name, ErrEmptyDocument)
	}
	return text, nil
}

func readPDF(data []byte) (text string, err error) {
	// the pdf package panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	var content strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(text)
	}

	return content.String(), nil
}

func readHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, head").Remove()

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

// isText sniffs the leading bytes of data. Names are not trusted, a .txt
// may hold an image and a .ts may be TypeScript.
func isText(data []byte) (string, bool) {
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed, strings.HasPrefix(sniffed, "text/")
}

func readText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

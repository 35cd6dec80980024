package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"studymate/internal/util"

	"github.com/ledongthuc/pdf"
)

// Text extracts plain text from an uploaded file. PDFs go through the pdf
// reader; text-like types are taken as UTF-8. Anything else is rejected so
// the uploader sees the failure instead of garbage being indexed.
func Text(data []byte, filename, mimeType string) (string, error) {
	switch {
	case isPDF(filename, mimeType):
		return fromPDF(data)
	case isPlainText(filename, mimeType):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s: not valid utf-8: %w", filename, util.ErrUnsupportedFileType)
		}
		text := util.SanitizeText(string(data))
		if text == "" {
			return "", fmt.Errorf("%s: %w", filename, util.ErrNoExtractableText)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%s (%s): %w", filename, mimeType, util.ErrUnsupportedFileType)
	}
}

func fromPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(buf.String())
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}

func isPDF(filename, mimeType string) bool {
	return strings.Contains(mimeType, "pdf") || strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func isPlainText(filename, mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") || strings.Contains(mimeType, "json") || strings.Contains(mimeType, "markdown") {
		return true
	}
	lower := strings.ToLower(filename)
	for _, ext := range []string{".txt", ".md", ".csv"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

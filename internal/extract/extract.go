// Package extract converts uploaded file bytes into plain text.
//
// Supported inputs form a closed set of formats (PDF, DOCX, plain text);
// each format maps to one extraction function, so adding or removing a
// format is a compile-time-checked change rather than a string switch
// scattered across the codebase.
//
// Error semantics:
//   - DetectFormat returns ErrUnsupportedFormat for any MIME type outside
//     the allow-list.
//   - Extract wraps parser failures so callers can errors.Is against
//     ErrExtraction.
//   - Extract returns ErrEmptyContent when the extracted text is empty or
//     whitespace-only; callers must treat that as a failure, never chunk it.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// Format identifies one supported document format.
type Format int

const (
	// FormatPDF is application/pdf.
	FormatPDF Format = iota
	// FormatDOCX is the OOXML word-processing document type.
	FormatDOCX
	// FormatText is text/plain.
	FormatText
)

// MIME types accepted at upload.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

var (
	// ErrUnsupportedFormat is returned for MIME types outside the allow-list.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyContent is returned when extraction yields no usable text
	// (e.g., a scanned-image PDF with no text layer).
	ErrEmptyContent = errors.New("document contains no extractable text")

	// ErrExtraction wraps parser failures for a structurally broken file.
	ErrExtraction = errors.New("text extraction failed")
)

// String returns the canonical MIME type of the format.
func (f Format) String() string {
	switch f {
	case FormatPDF:
		return MimePDF
	case FormatDOCX:
		return MimeDOCX
	case FormatText:
		return MimeText
	default:
		return "unknown"
	}
}

// DetectFormat maps a declared MIME type onto the closed Format set.
// MIME parameters (e.g. "text/plain; charset=utf-8") are ignored.
func DetectFormat(mimeType string) (Format, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case MimePDF:
		return FormatPDF, nil
	case MimeDOCX:
		return FormatDOCX, nil
	case MimeText:
		return FormatText, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}
}

// Supported reports whether the MIME type is on the upload allow-list.
// Handlers use it to reject unsupported uploads before any bytes land.
func Supported(mimeType string) bool {
	_, err := DetectFormat(mimeType)
	return err == nil
}

// Extract converts raw file bytes of the given format into plain text.
// It never returns an empty result with a nil error.
func Extract(data []byte, format Format) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDOCX:
		text, err = extractDOCX(data)
	case FormatText:
		text = string(data)
	default:
		return "", fmt.Errorf("%w: format %d", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

// extractPDF pulls the plain-text layer out of a PDF.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// extractDOCX walks the document body and joins paragraph and table text
// with newlines.
func extractDOCX(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			b.WriteString(it.String())
			b.WriteByte('\n')
		case *docx.Table:
			b.WriteString(it.String())
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

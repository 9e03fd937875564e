// Package pdfextract pulls plain text out of PDF evidence attachments.
package pdfextract

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractText parses PDF bytes and returns the concatenated plain text of all
// pages, one page per line. Pages that parse to a null value are skipped; a
// page whose content stream cannot be decoded fails the whole extraction so
// the caller can decide whether the document is worth keeping.
func ExtractText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	var out strings.Builder
	for page := 1; page <= doc.NumPage(); page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		out.WriteString(content)
		out.WriteString("\n")
	}
	return out.String(), nil
}

package extractor

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// extractPDFText reads the plain-text content of a PDF file, per the
// ledongthuc/pdf usage pinned in the other_examples manifests
// (dgallion1-docgest, bbiangul-go-reason): Open returns both the
// underlying *os.File (closed by the caller) and a *Reader whose
// GetPlainText streams the document's extracted text.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

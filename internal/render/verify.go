package render

import (
	"bytes"
	"errors"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// Verify checks that captured bytes are a parseable PDF with at least one
// page. It guards the pipeline against attaching a truncated or empty capture
// to the outgoing email.
func Verify(data []byte) error {
	if len(data) == 0 {
		return errors.New("verify pdf: empty document")
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("verify pdf: %w", err)
	}
	if doc.NumPage() < 1 {
		return errors.New("verify pdf: document has no pages")
	}
	return nil
}

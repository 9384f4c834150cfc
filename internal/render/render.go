// Package render turns a submitted invoice into PDF bytes. Two backends
// exist: a headless Chrome renderer that prints the tokenized invoice page,
// and a builtin renderer that draws the snapshot directly for environments
// without a browser.
package render

import (
	"context"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
)

// Job carries everything either backend needs. The Chrome backend navigates
// to PageURL; the builtin backend draws Invoice directly.
type Job struct {
	PageURL string
	Invoice *invoice.Invoice
}

// Renderer produces a PDF for one submission. Implementations do not retry;
// a failed render is terminal for that submission.
type Renderer interface {
	RenderPDF(ctx context.Context, job Job) ([]byte, error)
}

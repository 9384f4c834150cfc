package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// A4 paper size in inches for PrintToPDF.
const (
	paperWidthInches  = 8.27
	paperHeightInches = 11.69
)

// ChromeRenderer prints the invoice page with headless Chrome. It waits for
// the invoice's root container to attach before capturing, with background
// graphics enabled and no header/footer chrome.
type ChromeRenderer struct {
	timeout time.Duration
}

// NewChromeRenderer creates a ChromeRenderer with a per-render timeout.
func NewChromeRenderer(timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromeRenderer{timeout: timeout}
}

// RenderPDF navigates to the job's page URL and captures an A4 PDF snapshot.
func (r *ChromeRenderer) RenderPDF(ctx context.Context, job Job) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	browserCtx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(job.PageURL),
		chromedp.WaitReady("#invoice-page", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(false).
				WithPaperWidth(paperWidthInches).
				WithPaperHeight(paperHeightInches).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", job.PageURL, err)
	}
	return buf, nil
}

package docgen

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer converts standalone HTML to PDF bytes.
type Renderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Page geometry of a rendered agenda: US Letter with 15 mm margins.
const (
	letterWidthIn  = 8.5
	letterHeightIn = 11.0
	marginIn       = 15.0 / 25.4
)

// DefaultRenderTimeout bounds a single PDF conversion.
const DefaultRenderTimeout = 30 * time.Second

// ChromeRenderer prints HTML to PDF with headless Chromium via chromedp.
type ChromeRenderer struct {
	// ExecPath overrides the browser binary; empty uses chromedp's lookup.
	ExecPath string
	Timeout  time.Duration
}

// RenderPDF loads html into a blank tab and prints it.
func (r *ChromeRenderer) RenderPDF(parentCtx context.Context, html string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
	)
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parentCtx, opts...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var pdf []byte
	tasks := chromedp.Tasks{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(letterWidthIn).
				WithPaperHeight(letterHeightIn).
				WithMarginTop(marginIn).
				WithMarginBottom(marginIn).
				WithMarginLeft(marginIn).
				WithMarginRight(marginIn).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("docgen: chromedp run failed: %w", err)
	}
	return pdf, nil
}

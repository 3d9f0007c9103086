package artifact

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

//go:embed templates/certificate.html
var templateFS embed.FS

var certificateTemplate = template.Must(template.ParseFS(templateFS, "templates/certificate.html"))

// Renderer turns a document payload into printable bytes.
type Renderer interface {
	Render(ctx context.Context, doc DocumentPayload) ([]byte, error)
}

// ChromePDFRenderer prints the certificate template to PDF through a headless
// Chrome. The browser is started on first use and shared across renders; each
// render gets its own tab. A browser that has gone away is relaunched.
type ChromePDFRenderer struct {
	timeout     time.Duration
	allocCtx    context.Context
	cancelAlloc context.CancelFunc

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

func NewChromePDFRenderer(timeout time.Duration, opts ...chromedp.ExecAllocatorOption) *ChromePDFRenderer {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, opts...)
	// no process is launched until the first Run
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &ChromePDFRenderer{timeout: timeout, allocCtx: allocCtx, cancelAlloc: cancel}
}

func (r *ChromePDFRenderer) Render(ctx context.Context, doc DocumentPayload) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	html, err := renderHTML(doc)
	if err != nil {
		return nil, err
	}

	browserCtx, err := r.browser()
	if err != nil {
		return nil, err
	}
	// cancelling a tab context closes the tab, not the browser
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print certificate %s: %w", doc.CertificateNumber, err)
	}
	return pdf, nil
}

// browser returns the shared browser context, launching Chrome if none is running.
func (r *ChromePDFRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx != nil && r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	ctx, cancel := chromedp.NewContext(r.allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	r.browserCtx, r.cancelBrowser = ctx, cancel
	return ctx, nil
}

// Close shuts the shared browser down.
func (r *ChromePDFRenderer) Close() {
	r.mu.Lock()
	if r.cancelBrowser != nil {
		r.cancelBrowser()
	}
	r.mu.Unlock()
	r.cancelAlloc()
}

func renderHTML(doc DocumentPayload) (string, error) {
	png, err := QRCode(doc.VerificationURL, DefaultQRSize)
	if err != nil {
		return "", err
	}
	data := struct {
		DocumentPayload
		QRCode template.URL
	}{
		DocumentPayload: doc,
		QRCode:          template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)),
	}

	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute certificate template: %w", err)
	}
	return buf.String(), nil
}

package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// SetQuiet silences browser logging
func SetQuiet(q bool) {
	if q {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
}

// ErrClosed is returned when the browser was already shut down
var ErrClosed = errors.New("headless: browser closed")

// settle is how long a page gets to run its handlers after load
var settle = 2 * time.Second

// Browser drives one Chromium page. Calls are serialized per instance.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	mu      sync.Mutex
	fired   atomic.Bool
	closed  bool
}

// NewBrowser starts Playwright and opens a headless Chromium page
func NewBrowser() (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-extensions",
			"--mute-audio",
			"--no-first-run",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		UserAgent:         playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("new page: %w", err)
	}

	b := &Browser{pw: pw, browser: browser, context: bctx, page: page}
	page.On("dialog", func(dialog playwright.Dialog) {
		b.fired.Store(true)
		if err := dialog.Dismiss(); err != nil {
			logger.Debug("dismiss dialog", "error", err)
		}
	})
	return b, nil
}

// SetHeaders sends extra headers with every navigation
func (b *Browser) SetHeaders(headers map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if len(headers) == 0 {
		return nil
	}
	return b.context.SetExtraHTTPHeaders(headers)
}

// DialogFired loads target and reports whether the page opened a dialog.
// Elements whose markup contains marker are clicked so that javascript:
// links and focus or click handlers get a chance to run.
func (b *Browser) DialogFired(ctx context.Context, target, marker string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrClosed
	}
	b.fired.Store(false)

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := b.page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutMillis(ctx)),
	}); err != nil {
		return false, fmt.Errorf("navigate %s: %w", target, err)
	}
	return b.await(ctx, marker)
}

// DialogFiredForm loads pageURL, fills the named field with value and
// submits its form.
func (b *Browser) DialogFiredForm(ctx context.Context, pageURL, field, value, marker string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrClosed
	}
	b.fired.Store(false)

	if _, err := b.page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutMillis(ctx)),
	}); err != nil {
		return false, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	selector := fmt.Sprintf(`[name=%q]`, field)
	if err := b.page.Fill(selector, value); err != nil {
		return false, fmt.Errorf("fill %s: %w", field, err)
	}
	if _, err := b.page.Evaluate(`(sel) => { const el = document.querySelector(sel); if (el && el.form) el.form.submit(); }`, selector); err != nil {
		logger.Warn("submit form", "field", field, "error", err)
	}
	return b.await(ctx, marker)
}

func (b *Browser) await(ctx context.Context, marker string) (bool, error) {
	if marker != "" && !b.fired.Load() {
		clicked, err := b.page.Evaluate(`(marker) => {
			let n = 0;
			for (const el of document.querySelectorAll('a[href], button, input, [onclick], [onfocus], [onmouseover]')) {
				if (!el.outerHTML.includes(marker)) continue;
				try { el.focus(); el.click(); n++; } catch (e) {}
				if (n >= 10) break;
			}
			return n;
		}`, marker)
		if err != nil {
			logger.Debug("trigger events", "error", err)
		} else {
			logger.Debug("trigger events", "clicked", clicked)
		}
	}

	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return b.fired.Load(), ctx.Err()
	}
	return b.fired.Load(), nil
}

// Close shuts the page, context, browser and driver down
func (b *Browser) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func timeoutMillis(ctx context.Context) float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return float64(d.Milliseconds())
		}
	}
	return 60000
}

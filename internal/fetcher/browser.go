package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod.
// The catalog source builds its product grid client-side, so listing
// and detail pages need a real render before the selectors match.
//
// The browser is owned by the fetcher: acquired in NewBrowserFetcher,
// released in Close on every exit path of a run.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      *config.Config
	logger   *slog.Logger
	stealth  bool
	pool     *pagePool
	maxPages int
}

// pagePool hands out reusable browser tabs. Returns racing Close are
// released instead of pooled; the channel itself is never closed, so a
// late put can never panic.
type pagePool struct {
	mu      sync.Mutex
	closed  bool
	pages   chan *rod.Page
	release func(*rod.Page)
}

func newPagePool(size int, release func(*rod.Page)) *pagePool {
	return &pagePool{pages: make(chan *rod.Page, size), release: release}
}

// get returns a pooled tab if one is available. The second result is
// false once the pool is closed.
func (p *pagePool) get() (*rod.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	select {
	case page := <-p.pages:
		return page, true
	default:
		return nil, true
	}
}

// put returns a tab to the pool. A full or closed pool releases it.
func (p *pagePool) put(page *rod.Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.release(page)
		return
	}
	select {
	case p.pages <- page:
	default:
		p.release(page)
	}
}

// close drains and releases every pooled tab. Safe to call more than
// once.
func (p *pagePool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for {
		select {
		case page := <-p.pages:
			p.release(page)
		default:
			return
		}
	}
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithStealth enables anti-detection page patching.
func WithStealth(enabled bool) BrowserOption {
	return func(bf *BrowserFetcher) { bf.stealth = enabled }
}

// WithMaxPages sets the maximum number of pooled browser tabs.
func WithMaxPages(n int) BrowserOption {
	return func(bf *BrowserFetcher) { bf.maxPages = n }
}

// NewBrowserFetcher launches a headless Chromium and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:      cfg,
		logger:   logger.With("component", "browser_fetcher"),
		stealth:  true,
		maxPages: 2,
	}

	for _, opt := range opts {
		opt(bf)
	}

	launchURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-web-security").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1920,1080").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf.browser = browser
	bf.pool = newPagePool(bf.maxPages, func(page *rod.Page) { _ = page.Close() })

	bf.logger.Info("browser fetcher ready", "max_pages", bf.maxPages, "stealth", bf.stealth)
	return bf, nil
}

// Fetch navigates to a URL and returns the rendered page content.
// Navigation failures count as transport failures and go through the
// same fixed-backoff retry budget as the HTTP fetcher.
func (bf *BrowserFetcher) Fetch(ctx context.Context, url string, opts Options) (*types.Page, error) {
	maxRetries := bf.cfg.Fetcher.MaxRetries
	if opts.MaxRetries >= 0 {
		maxRetries = opts.MaxRetries
	}

	return fetchWithRetries(ctx, url, maxRetries, bf.cfg.Fetcher.RetryDelay, bf.logger, func() (*types.Page, error) {
		return bf.doFetch(ctx, url, opts)
	})
}

func (bf *BrowserFetcher) doFetch(ctx context.Context, url string, opts Options) (*types.Page, error) {
	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: url, Err: err, Retryable: true}
	}
	defer bf.putPage(page)

	page = page.Context(ctx)

	if ua := opts.Headers.Get("User-Agent"); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if len(opts.Headers) > 0 {
		headers := make([]string, 0, len(opts.Headers)*2)
		for k, vals := range opts.Headers {
			if k == "User-Agent" {
				continue // Already handled
			}
			for _, v := range vals {
				headers = append(headers, k, v)
			}
		}
		if len(headers) > 0 {
			_, _ = page.SetExtraHeaders(headers)
		}
	}

	timeout := bf.cfg.Fetcher.RequestTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	if err := page.Timeout(timeout).Navigate(url); err != nil {
		return nil, &types.FetchError{URL: url, Err: err, Retryable: true}
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", url, "error", err)
	}

	// Wait for the ready selector if given, otherwise a fixed settle
	// delay; the product grid streams in after the document loads.
	if opts.WaitSelector != "" {
		if el, err := page.Timeout(10 * time.Second).Element(opts.WaitSelector); err != nil {
			bf.logger.Warn("wait selector not found, continuing", "selector", opts.WaitSelector, "error", err)
		} else if err := el.WaitVisible(); err != nil {
			bf.logger.Warn("wait selector never visible", "selector", opts.WaitSelector, "error", err)
		}
	} else if bf.cfg.Fetcher.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, &types.FetchError{URL: url, Err: ctx.Err()}
		case <-time.After(bf.cfg.Fetcher.SettleDelay):
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: url, Err: err, Retryable: true}
	}

	finalURL := url
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	bf.logger.Debug("browser fetch complete",
		"url", url,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return types.NewRenderedPage(url, finalURL, []byte(html), duration), nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	bf.pool.close()
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// getPage retrieves a tab from the pool or creates a new one.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	page, ok := bf.pool.get()
	if !ok {
		return nil, fmt.Errorf("browser fetcher closed")
	}
	if page != nil {
		return page, nil
	}
	if bf.stealth {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage returns a tab to the pool.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	// Navigate to blank to free memory from the last page
	_ = page.Navigate("about:blank")
	bf.pool.put(page)
}

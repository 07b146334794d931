package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

// Options tunes a single fetch.
type Options struct {
	// RenderJS asks for a headless-browser render. Only honored by
	// fetchers that can drive a browser; the plain HTTP fetcher
	// ignores it.
	RenderJS bool

	// Headers are extra request headers layered over the defaults.
	Headers http.Header

	// Timeout overrides the configured request timeout when > 0.
	Timeout time.Duration

	// MaxRetries overrides the configured retry budget when >= 0.
	// Retries apply to transport-level failures only; an HTTP error
	// status is returned immediately.
	MaxRetries int

	// WaitSelector is a CSS selector the browser waits for before
	// returning rendered content. Empty means wait for the settle delay.
	WaitSelector string
}

// DefaultOptions returns Options that defer every knob to the config.
func DefaultOptions() Options {
	return Options{MaxRetries: -1}
}

// Fetcher retrieves raw page content for a URL.
type Fetcher interface {
	// Fetch retrieves the content at url. Transport failures are retried
	// up to the retry budget with a fixed backoff; HTTP error statuses
	// are surfaced immediately as *types.FetchError.
	Fetch(ctx context.Context, url string, opts Options) (*types.Page, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// fetchWithRetries runs attempt until it succeeds, returns a
// non-retryable error, or the retry budget is spent. The backoff
// between attempts is fixed, not exponential.
func fetchWithRetries(ctx context.Context, url string, maxRetries int, backoff time.Duration,
	logger *slog.Logger, attempt func() (*types.Page, error)) (*types.Page, error) {

	var lastErr error
	for try := 0; try <= maxRetries; try++ {
		if try > 0 {
			logger.Debug("retrying fetch", "url", url, "attempt", try, "max_retries", maxRetries)
			select {
			case <-ctx.Done():
				return nil, &types.FetchError{URL: url, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		page, err := attempt()
		if err == nil {
			return page, nil
		}
		lastErr = err

		var fe *types.FetchError
		if errors.As(err, &fe) && !fe.Retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &types.FetchError{URL: url, Err: ctx.Err()}
		}
	}

	if fe, ok := lastErr.(*types.FetchError); ok {
		fe.Err = errors.Join(types.ErrMaxRetries, fe.Err)
		fe.Retryable = false
		return nil, fe
	}
	return nil, &types.FetchError{URL: url, Err: errors.Join(types.ErrMaxRetries, lastErr)}
}

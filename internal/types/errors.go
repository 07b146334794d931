package types

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrEmptyResponse    = errors.New("empty response body")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrStoreUnavailable = errors.New("catalog store unavailable")
	ErrRunCanceled      = errors.New("ingestion run canceled")
)

// FetchError wraps errors that occur while retrieving a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// IsRateLimit reports whether the source answered with HTTP 429.
// The pagination driver converts this into a cooldown, not a failure.
func (e *FetchError) IsRateLimit() bool { return e.StatusCode == http.StatusTooManyRequests }

// ParseError wraps errors that occur while extracting a field.
// Field-level parse errors never leave the parsers; they are logged
// and the field falls back to its documented default.
type ParseError struct {
	URL      string
	Field    string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (field=%q selector=%q): %v", e.URL, e.Field, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError wraps errors from the catalog store. A StoreError with
// Fatal set aborts the ingestion run; anything else is tolerated.
type StoreError struct {
	Backend string
	Err     error
	Fatal   bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error (%s): %v", e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

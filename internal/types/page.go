package types

import (
	"bytes"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is the raw result of fetching a URL, either over plain HTTP
// or through the headless browser.
type Page struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after any redirects.
	FinalURL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers are the response HTTP headers (empty for browser fetches).
	Headers http.Header

	// Body is the raw page content.
	Body []byte

	// ContentType is the MIME type of the response.
	ContentType string

	// Rendered is true when the content came from a headless browser.
	Rendered bool

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration

	// FetchedAt is when this page was received.
	FetchedAt time.Time

	doc *goquery.Document
}

// NewPage creates a Page from an http.Response.
func NewPage(url string, httpResp *http.Response, body []byte, duration time.Duration) *Page {
	return &Page{
		URL:           url,
		FinalURL:      httpResp.Request.URL.String(),
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		ContentType:   httpResp.Header.Get("Content-Type"),
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// NewRenderedPage creates a Page from headless browser output.
func NewRenderedPage(url, finalURL string, html []byte, duration time.Duration) *Page {
	return &Page{
		URL:           url,
		FinalURL:      finalURL,
		StatusCode:    http.StatusOK,
		Headers:       make(http.Header),
		Body:          html,
		ContentType:   "text/html",
		Rendered:      true,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// Document returns a parsed goquery document, lazily initializing it.
func (p *Page) Document() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, err
	}
	p.doc = doc
	return doc, nil
}

// BaseURL returns the best URL to resolve relative links against.
func (p *Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// IsSuccess returns true if the response status is 2xx.
func (p *Page) IsSuccess() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

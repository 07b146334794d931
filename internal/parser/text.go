package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe    = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	detailIDRe = regexp.MustCompile(`-p-(\d+)`)
)

// CleanPrice strips currency symbols and separators from price text
// and parses the first numeric run. Unparseable text yields 0 so a
// bad price never drops a card.
func CleanPrice(text string) float64 {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	m := priceRe.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// IDFromDetailURL extracts the source product id from a detail-page
// URL of the form .../{slug}-p-{id}.html. Returns "" when the URL
// does not carry an id.
func IDFromDetailURL(detailURL string) string {
	m := detailIDRe.FindStringSubmatch(detailURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// resolveURL makes href absolute against base. Protocol-relative
// image URLs ("//img.example.com/...") get https.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := b.ResolveReference(h)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

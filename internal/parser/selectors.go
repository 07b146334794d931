package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

// Selector is one structural probe into uncontrolled third-party
// markup. Type "css" (the default) runs through goquery; "xpath" runs
// through htmlquery against the full document.
type Selector struct {
	Query string
	Type  string // "css" (default) or "xpath"
	Attr  string // "", "text" → text content; otherwise attribute name
}

func (s Selector) isXPath() bool { return s.Type == "xpath" }

// ListingSelectors locates product cards and their fields on a
// category listing page. Field selectors are scoped to one card and
// are CSS only; a Query of "" addresses the card element itself.
type ListingSelectors struct {
	Card          []Selector
	ID            []Selector
	Name          []Selector
	Price         []Selector
	OriginalPrice []Selector
	Thumbnails    []Selector
	DetailLink    []Selector
}

// DetailSelectors locates the enrichment fields on a product detail
// page. These run against the whole document, so XPath fallbacks are
// allowed.
type DetailSelectors struct {
	Name          []Selector
	Description   []Selector
	Price         []Selector
	OriginalPrice []Selector
	Images        []Selector
	Sizes         []Selector
	Colors        []Selector
}

// SiteProfile parameterizes the pipeline for one source site: URL
// shape, browser ready-selectors, and per-field selector priority
// lists. The source markup is a versionless external contract, so
// every list starts with the currently observed structure and falls
// back to looser probes.
type SiteProfile struct {
	BaseURL string

	// ListingReady / DetailReady are the selectors the browser fetcher
	// waits for before returning rendered content.
	ListingReady string
	DetailReady  string

	Listing ListingSelectors
	Detail  DetailSelectors
}

// ListingURL builds the category listing URL for one page number.
// pageSize <= 0 leaves the source's default page length.
func (p *SiteProfile) ListingURL(category string, page, pageSize int) string {
	u := fmt.Sprintf("%s/%s-cat.html?page=%d", strings.TrimRight(p.BaseURL, "/"), category, page)
	if pageSize > 0 {
		u += fmt.Sprintf("&limit=%d", pageSize)
	}
	return u
}

// DefaultProfile returns the selector profile for the fashion catalog
// source. Primary selectors are the site's current class names; the
// attribute-substring variants cover the class-name churn observed on
// past markup revisions.
func DefaultProfile(baseURL string) *SiteProfile {
	return &SiteProfile{
		BaseURL:      baseURL,
		ListingReady: ".product-list .S-product-item",
		DetailReady:  ".product-intro",
		Listing: ListingSelectors{
			Card: []Selector{
				{Query: ".product-list .S-product-item"},
				{Query: `[class*="product-list"] [class*="product-item"]`},
			},
			ID: []Selector{
				{Query: "", Attr: "data-id"},
				{Query: "[data-id]", Attr: "data-id"},
			},
			Name: []Selector{
				{Query: ".S-product-item__name"},
				{Query: `[class*="product-item__name"]`},
				{Query: "a[title]", Attr: "title"},
			},
			Price: []Selector{
				{Query: ".S-product-item__price"},
				{Query: `[class*="product-item__price"]`},
				{Query: ".price"},
			},
			OriginalPrice: []Selector{
				{Query: ".S-product-item__original-price"},
				{Query: `[class*="original-price"]`},
				{Query: "del"},
			},
			Thumbnails: []Selector{
				{Query: ".S-product-item__img-container img", Attr: "src"},
				{Query: "img", Attr: "src"},
				{Query: "img", Attr: "data-src"},
			},
			DetailLink: []Selector{
				{Query: ".S-product-item__img-container a", Attr: "href"},
				{Query: "a", Attr: "href"},
			},
		},
		Detail: DetailSelectors{
			Name: []Selector{
				{Query: ".product-intro__head-name"},
				{Query: `[class*="head-name"]`},
				{Query: "h1"},
				{Query: "//h1", Type: "xpath"},
			},
			Description: []Selector{
				{Query: ".product-intro__description"},
				{Query: "meta[name=description]", Attr: "content"},
				{Query: `//meta[@property="og:description"]`, Type: "xpath", Attr: "content"},
			},
			Price: []Selector{
				{Query: ".product-intro__head-price"},
				{Query: `[class*="head-price"]`},
				{Query: ".price"},
				{Query: "[data-price]", Attr: "data-price"},
				{Query: `//*[@itemprop="price"]`, Type: "xpath"},
				{Query: `meta[property="product:price:amount"]`, Attr: "content"},
			},
			OriginalPrice: []Selector{
				{Query: ".product-intro__head-original-price"},
				{Query: `[class*="original-price"]`},
				{Query: "del"},
			},
			Images: []Selector{
				{Query: ".product-intro__galleryWrap img", Attr: "src"},
				{Query: `[class*="gallery"] img`, Attr: "src"},
				{Query: `//img[contains(@src, "//")]`, Type: "xpath", Attr: "src"},
			},
			Sizes: []Selector{
				{Query: ".product-intro__size-radio-inner"},
				{Query: `[class*="size-radio"]`},
				{Query: "[data-size]", Attr: "data-size"},
			},
			Colors: []Selector{
				{Query: ".product-intro__color-radio", Attr: "title"},
				{Query: `[class*="color-radio"]`, Attr: "title"},
				{Query: "[data-color]", Attr: "data-color"},
			},
		},
	}
}

// --- extraction helpers ---

// document bundles the two parse trees one page may need: goquery for
// CSS probes, x/net/html for XPath probes (built lazily).
type document struct {
	page *types.Page
	doc  *goquery.Document
	node *html.Node
}

func newDocument(page *types.Page) (*document, error) {
	doc, err := page.Document()
	if err != nil {
		return nil, &types.ParseError{URL: page.URL, Err: err}
	}
	return &document{page: page, doc: doc}, nil
}

func (d *document) xpathRoot() *html.Node {
	if d.node == nil {
		node, err := htmlquery.Parse(bytes.NewReader(d.page.Body))
		if err != nil {
			return nil
		}
		d.node = node
	}
	return d.node
}

// first tries each selector in priority order and returns the first
// non-empty value found in the document.
func (d *document) first(selectors []Selector) string {
	for _, s := range selectors {
		if s.isXPath() {
			root := d.xpathRoot()
			if root == nil {
				continue
			}
			if node := htmlquery.FindOne(root, s.Query); node != nil {
				if v := xpathValue(node, s.Attr); v != "" {
					return v
				}
			}
			continue
		}
		var found string
		d.doc.Find(s.Query).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if v := selectionValue(sel, s.Attr); v != "" {
				found = v
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// all returns every value matched by the first selector in the list
// that yields anything, preserving document order.
func (d *document) all(selectors []Selector) []string {
	for _, s := range selectors {
		var values []string
		if s.isXPath() {
			root := d.xpathRoot()
			if root == nil {
				continue
			}
			for _, node := range htmlquery.Find(root, s.Query) {
				if v := xpathValue(node, s.Attr); v != "" {
					values = append(values, v)
				}
			}
		} else {
			d.doc.Find(s.Query).Each(func(_ int, sel *goquery.Selection) {
				if v := selectionValue(sel, s.Attr); v != "" {
					values = append(values, v)
				}
			})
		}
		if len(values) > 0 {
			return values
		}
	}
	return nil
}

// cardFirst is first scoped to one card selection. Card fields are
// CSS only; XPath entries are skipped.
func cardFirst(card *goquery.Selection, selectors []Selector) string {
	for _, s := range selectors {
		if s.isXPath() {
			continue
		}
		if s.Query == "" {
			if v := selectionValue(card, s.Attr); v != "" {
				return v
			}
			continue
		}
		var found string
		card.Find(s.Query).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if v := selectionValue(sel, s.Attr); v != "" {
				found = v
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// cardAll is all scoped to one card selection.
func cardAll(card *goquery.Selection, selectors []Selector) []string {
	for _, s := range selectors {
		if s.isXPath() {
			continue
		}
		var values []string
		card.Find(s.Query).Each(func(_ int, sel *goquery.Selection) {
			if v := selectionValue(sel, s.Attr); v != "" {
				values = append(values, v)
			}
		})
		if len(values) > 0 {
			return values
		}
	}
	return nil
}

func selectionValue(sel *goquery.Selection, attr string) string {
	switch attr {
	case "", "text":
		return strings.TrimSpace(sel.Text())
	default:
		v, _ := sel.Attr(attr)
		return strings.TrimSpace(v)
	}
}

func xpathValue(node *html.Node, attr string) string {
	switch attr {
	case "", "text":
		return strings.TrimSpace(htmlquery.InnerText(node))
	default:
		return strings.TrimSpace(htmlquery.SelectAttr(node, attr))
	}
}

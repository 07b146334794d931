package parser

import (
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

// ListingParser extracts product summary records from a category
// listing page.
type ListingParser struct {
	profile *SiteProfile
	logger  *slog.Logger
}

// NewListingParser creates a listing parser for the given site profile.
func NewListingParser(profile *SiteProfile, logger *slog.Logger) *ListingParser {
	return &ListingParser{
		profile: profile,
		logger:  logger.With("component", "listing_parser"),
	}
}

// Parse extracts the product cards from a listing page, in document
// order. Cards without a resolvable id or detail link are skipped,
// not errored. An empty result is valid and signals end-of-catalog
// to the pagination driver.
func (p *ListingParser) Parse(page *types.Page, category string) ([]types.ProductSummary, error) {
	d, err := newDocument(page)
	if err != nil {
		return nil, err
	}

	cards := p.findCards(d)
	if cards == nil {
		p.logger.Debug("no product cards found", "url", page.URL, "category", category)
		return nil, nil
	}

	sels := &p.profile.Listing
	base := page.BaseURL()

	var summaries []types.ProductSummary
	var skipped int

	cards.Each(func(_ int, card *goquery.Selection) {
		sum := types.ProductSummary{
			Name:          cardFirst(card, sels.Name),
			Price:         CleanPrice(cardFirst(card, sels.Price)),
			OriginalPrice: CleanPrice(cardFirst(card, sels.OriginalPrice)),
			DetailURL:     resolveURL(base, cardFirst(card, sels.DetailLink)),
			CategoryTag:   category,
		}

		for _, thumb := range cardAll(card, sels.Thumbnails) {
			if u := resolveURL(base, thumb); u != "" {
				sum.ThumbnailURLs = append(sum.ThumbnailURLs, u)
			}
		}

		sum.ExternalID = cardFirst(card, sels.ID)
		if sum.ExternalID == "" {
			// Older markup drops data-id; the detail link still
			// carries the id in its -p-{id} slug.
			sum.ExternalID = IDFromDetailURL(sum.DetailURL)
		}

		if !sum.Valid() {
			skipped++
			return
		}
		summaries = append(summaries, sum)
	})

	p.logger.Debug("listing parsed",
		"url", page.URL,
		"category", category,
		"summaries", len(summaries),
		"skipped", skipped,
	)

	return summaries, nil
}

// findCards tries the card selectors in priority order and returns
// the first selection with any matches.
func (p *ListingParser) findCards(d *document) *goquery.Selection {
	for _, s := range p.profile.Listing.Card {
		if s.isXPath() || s.Query == "" {
			continue
		}
		if sel := d.doc.Find(s.Query); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

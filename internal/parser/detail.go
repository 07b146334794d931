package parser

import (
	"log/slog"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

// DetailParser extracts the enrichment record from a product detail
// page. Every field is extracted independently: a selector miss or a
// malformed value defaults that one field and never aborts the rest.
// The markup is uncontrolled third-party HTML that changes without
// notice, so partial extraction is the normal case, not an error.
type DetailParser struct {
	profile *SiteProfile
	logger  *slog.Logger
}

// NewDetailParser creates a detail parser for the given site profile.
func NewDetailParser(profile *SiteProfile, logger *slog.Logger) *DetailParser {
	return &DetailParser{
		profile: profile,
		logger:  logger.With("component", "detail_parser"),
	}
}

// Parse extracts a ProductDetail from a detail page. It never fails:
// an unreadable document yields an all-defaults record and missing
// fields keep their zero values for the merge step to fill in.
func (p *DetailParser) Parse(page *types.Page) types.ProductDetail {
	var det types.ProductDetail

	d, err := newDocument(page)
	if err != nil {
		p.logger.Warn("detail page not parseable, using defaults", "url", page.URL, "error", err)
		return det
	}

	sels := &p.profile.Detail
	base := page.BaseURL()

	det.Name = d.first(sels.Name)
	det.Description = d.first(sels.Description)
	det.Price = CleanPrice(d.first(sels.Price))
	det.OriginalPrice = CleanPrice(d.first(sels.OriginalPrice))

	for _, img := range d.all(sels.Images) {
		if u := resolveURL(base, img); u != "" {
			det.Images = append(det.Images, u)
		}
	}
	det.Images = dedupeStrings(det.Images)

	det.Sizes = dedupeStrings(d.all(sels.Sizes))
	det.Colors = dedupeStrings(d.all(sels.Colors))

	p.logger.Debug("detail parsed",
		"url", page.URL,
		"name", det.Name,
		"images", len(det.Images),
		"sizes", len(det.Sizes),
		"colors", len(det.Colors),
	)

	return det
}

// dedupeStrings removes duplicates while preserving document order.
// Size and color swatches repeat across markup variants.
func dedupeStrings(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

package types

import (
	"math/rand"
	"time"
)

// Placeholder values used when the source markup yields nothing for a
// field. The catalog schema requires every field to be populated, so
// extraction failure defaults a field instead of dropping the record.
var (
	DefaultImages = []string{"https://via.placeholder.com/300"}
	DefaultSizes  = []string{"S", "M", "L", "XL"}
	DefaultColors = []string{"Black", "White"}
)

const (
	// DefaultDescription fills in when a detail page has no description.
	DefaultDescription = "No description available"

	// DefaultCategory tags single-URL ingestions that arrive without
	// a category context.
	DefaultCategory = "Other"
)

// ProductSummary is one product card scraped from a category listing
// page. It carries just enough to render a catalog tile and to locate
// the detail page for enrichment.
type ProductSummary struct {
	// ExternalID is the source site's product identifier, unique per source.
	ExternalID string

	Name          string
	Price         float64
	OriginalPrice float64

	// ThumbnailURLs are the card images, in document order. May be empty.
	ThumbnailURLs []string

	// DetailURL is the absolute URL of the product detail page.
	DetailURL string

	// CategoryTag is the listing category this summary came from.
	CategoryTag string
}

// Valid reports whether the summary may be passed downstream.
// Cards without a resolvable id or detail link are dropped at parse time.
func (s *ProductSummary) Valid() bool {
	return s.ExternalID != "" && s.DetailURL != ""
}

// ProductDetail is the enriched record scraped from a product detail
// page. Every field is extracted independently; a failed field keeps
// its zero value and is defaulted at merge time.
type ProductDetail struct {
	Name          string
	Description   string
	Price         float64
	OriginalPrice float64
	Images        []string
	Sizes         []string
	Colors        []string
}

// CanonicalProduct is the merged, normalized record persisted to the
// catalog. SourceID is the upsert/dedup key: re-ingesting the same
// source product replaces fields instead of duplicating the row.
type CanonicalProduct struct {
	SourceID      string    `bson:"source_id" json:"sourceId"`
	SourceURL     string    `bson:"source_url" json:"sourceUrl"`
	Name          string    `bson:"name" json:"name"`
	Description   string    `bson:"description" json:"description"`
	Price         float64   `bson:"price" json:"price"`
	OriginalPrice float64   `bson:"original_price" json:"originalPrice"`
	Images        []string  `bson:"images" json:"images"`
	Sizes         []string  `bson:"sizes" json:"sizes"`
	Colors        []string  `bson:"colors" json:"colors"`
	Category      string    `bson:"category" json:"category"`
	StockCount    int       `bson:"stock_count" json:"stockCount"`
	Rating        float64   `bson:"rating" json:"rating"`
	NumReviews    int       `bson:"num_reviews" json:"numReviews"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updatedAt"`
}

// MergeProduct combines a listing summary with its (possibly empty)
// detail record into the canonical form. Detail fields win when
// present; summary fields back them up; placeholders cover the rest.
// The source exposes no stock or review signal through this pipeline,
// so those fields get synthetic defaults.
func MergeProduct(sum ProductSummary, det ProductDetail) CanonicalProduct {
	now := time.Now()

	p := CanonicalProduct{
		SourceID:      sum.ExternalID,
		SourceURL:     sum.DetailURL,
		Name:          firstNonEmpty(det.Name, sum.Name),
		Description:   firstNonEmpty(det.Description, DefaultDescription),
		Price:         firstPositive(det.Price, sum.Price),
		OriginalPrice: firstPositive(det.OriginalPrice, sum.OriginalPrice),
		Category:      firstNonEmpty(sum.CategoryTag, DefaultCategory),
		StockCount:    syntheticStock(),
		Rating:        syntheticRating(),
		NumReviews:    syntheticReviews(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch {
	case len(det.Images) > 0:
		p.Images = det.Images
	case len(sum.ThumbnailURLs) > 0:
		p.Images = sum.ThumbnailURLs
	default:
		p.Images = DefaultImages
	}

	p.Sizes = det.Sizes
	if len(p.Sizes) == 0 {
		p.Sizes = DefaultSizes
	}
	p.Colors = det.Colors
	if len(p.Colors) == 0 {
		p.Colors = DefaultColors
	}

	// A sale price without a struck-through original means no discount.
	if p.OriginalPrice == 0 {
		p.OriginalPrice = p.Price
	}

	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Synthetic catalog signals, in the same ranges the storefront seeds with.

func syntheticStock() int { return 10 + rand.Intn(50) }

func syntheticRating() float64 { return 3 + rand.Float64()*2 }

func syntheticReviews() int { return rand.Intn(100) }

package types

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestMergeProductDetailWins(t *testing.T) {
	sum := ProductSummary{
		ExternalID:    "1001",
		Name:          "Card Name",
		Price:         29.99,
		OriginalPrice: 49.99,
		ThumbnailURLs: []string{"https://img.test/thumb.jpg"},
		DetailURL:     "https://store.test/item-p-1001.html",
		CategoryTag:   "women-dresses",
	}
	det := ProductDetail{
		Name:          "Detail Name",
		Description:   "Full description.",
		Price:         27.99,
		OriginalPrice: 45.00,
		Images:        []string{"https://img.test/full.jpg"},
		Sizes:         []string{"S", "M"},
		Colors:        []string{"Red"},
	}

	p := MergeProduct(sum, det)

	if p.SourceID != "1001" || p.SourceURL != sum.DetailURL {
		t.Errorf("source identity lost: %+v", p)
	}
	if p.Name != "Detail Name" {
		t.Errorf("detail name must win, got %q", p.Name)
	}
	if p.Price != 27.99 || p.OriginalPrice != 45.00 {
		t.Errorf("detail prices must win, got %v / %v", p.Price, p.OriginalPrice)
	}
	if p.Category != "women-dresses" {
		t.Errorf("unexpected category %q", p.Category)
	}
	if len(p.Images) != 1 || p.Images[0] != "https://img.test/full.jpg" {
		t.Errorf("detail images must win, got %v", p.Images)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("timestamps must be set")
	}
}

func TestMergeProductSummaryBacksUpDetail(t *testing.T) {
	sum := ProductSummary{
		ExternalID:    "1002",
		Name:          "Card Name",
		Price:         12.50,
		ThumbnailURLs: []string{"https://img.test/thumb.jpg"},
		DetailURL:     "https://store.test/item-p-1002.html",
	}

	p := MergeProduct(sum, ProductDetail{})

	if p.Name != "Card Name" {
		t.Errorf("summary name must back up an empty detail, got %q", p.Name)
	}
	if p.Price != 12.50 {
		t.Errorf("summary price must back up, got %v", p.Price)
	}
	if len(p.Images) != 1 || p.Images[0] != sum.ThumbnailURLs[0] {
		t.Errorf("thumbnails must back up missing detail images, got %v", p.Images)
	}
}

func TestMergeProductPlaceholders(t *testing.T) {
	sum := ProductSummary{
		ExternalID: "1003",
		DetailURL:  "https://store.test/item-p-1003.html",
	}

	p := MergeProduct(sum, ProductDetail{})

	if p.Description != DefaultDescription {
		t.Errorf("expected default description, got %q", p.Description)
	}
	if p.Category != DefaultCategory {
		t.Errorf("expected default category, got %q", p.Category)
	}
	if len(p.Images) != len(DefaultImages) || p.Images[0] != DefaultImages[0] {
		t.Errorf("expected placeholder image, got %v", p.Images)
	}
	if len(p.Sizes) != len(DefaultSizes) {
		t.Errorf("expected default sizes, got %v", p.Sizes)
	}
	if len(p.Colors) != len(DefaultColors) {
		t.Errorf("expected default colors, got %v", p.Colors)
	}
	if p.StockCount < 10 || p.StockCount >= 60 {
		t.Errorf("synthetic stock out of range: %d", p.StockCount)
	}
	if p.Rating < 3 || p.Rating > 5 {
		t.Errorf("synthetic rating out of range: %v", p.Rating)
	}
	if p.NumReviews < 0 || p.NumReviews >= 100 {
		t.Errorf("synthetic reviews out of range: %d", p.NumReviews)
	}
}

func TestMergeProductOriginalPriceFallsBackToPrice(t *testing.T) {
	sum := ProductSummary{
		ExternalID: "1004",
		Price:      9.99,
		DetailURL:  "https://store.test/item-p-1004.html",
	}

	p := MergeProduct(sum, ProductDetail{})

	if p.OriginalPrice != p.Price {
		t.Errorf("missing original price must equal price, got %v vs %v", p.OriginalPrice, p.Price)
	}
}

func TestProductSummaryValid(t *testing.T) {
	s := ProductSummary{ExternalID: "1", DetailURL: "https://store.test/a-p-1.html"}
	if !s.Valid() {
		t.Error("expected valid summary")
	}
	s.ExternalID = ""
	if s.Valid() {
		t.Error("summary without id must be invalid")
	}
	s = ProductSummary{ExternalID: "1"}
	if s.Valid() {
		t.Error("summary without detail link must be invalid")
	}
}

func TestFetchErrorRateLimit(t *testing.T) {
	fe := &FetchError{
		URL:        "https://store.test/x",
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: 30 * time.Second,
		Err:        errors.New("slow down"),
	}
	if !fe.IsRateLimit() {
		t.Error("429 must report as rate limit")
	}
	if !errors.Is(fe, fe.Err) {
		t.Error("FetchError must unwrap its cause")
	}

	fe.StatusCode = http.StatusServiceUnavailable
	if fe.IsRateLimit() {
		t.Error("non-429 must not report as rate limit")
	}
}

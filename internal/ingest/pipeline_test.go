package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/fetcher"
	"github.com/trendhaul/catalog-ingest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const testBaseURL = "https://store.test"

// --- fakes ---

// fakeFetcher serves canned responses per URL. The serve func gets
// the per-URL call count so tests can script different answers for
// repeated fetches of the same page.
type fakeFetcher struct {
	mu     sync.Mutex
	serve  func(url string, call int) (*types.Page, error)
	perURL map[string]int
	calls  []string
}

func newFakeFetcher(serve func(url string, call int) (*types.Page, error)) *fakeFetcher {
	return &fakeFetcher{serve: serve, perURL: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, _ fetcher.Options) (*types.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	call := f.perURL[url]
	f.perURL[url]++
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	return f.serve(url, call)
}

func (f *fakeFetcher) Close() error { return nil }
func (f *fakeFetcher) Type() string { return "fake" }

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perURL[url]
}

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	products  map[string]*types.CanonicalProduct
	upserts   int
	flushes   int
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{products: make(map[string]*types.CanonicalProduct)}
}

func (s *fakeStore) UpsertOne(_ context.Context, p *types.CanonicalProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.products[p.SourceID] = p
	return nil
}

func (s *fakeStore) InsertMany(_ context.Context, products []*types.CanonicalProduct) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	inserted := 0
	for _, p := range products {
		if _, exists := s.products[p.SourceID]; exists {
			continue
		}
		s.products[p.SourceID] = p
		inserted++
	}
	return inserted, nil
}

func (s *fakeStore) HasSourceID(_ context.Context, sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.products[sourceID]
	return ok, nil
}

func (s *fakeStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.products)), nil
}

func (s *fakeStore) Close(context.Context) error { return nil }
func (s *fakeStore) Name() string                { return "fake" }

func (s *fakeStore) get(id string) *types.CanonicalProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

// --- HTML builders ---

func cardHTML(id string) string {
	return fmt.Sprintf(`<div class="S-product-item" data-id="%s">
		<div class="S-product-item__img-container">
			<a href="/item-p-%s.html"><img src="//img.store.test/%s.jpg"></a>
		</div>
		<div class="S-product-item__name">Product %s</div>
		<span class="S-product-item__price">$10.00</span>
	</div>`, id, id, id, id)
}

func listingPageHTML(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="product-list">`)
	for _, id := range ids {
		b.WriteString(cardHTML(id))
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func detailPageHTML(name string, price float64) string {
	return fmt.Sprintf(`<html><body><div class="product-intro">
		<h1 class="product-intro__head-name">%s</h1>
		<div class="product-intro__head-price">$%.2f</div>
		<div class="product-intro__description">Detail description for %s.</div>
		<div class="product-intro__galleryWrap"><img src="//img.store.test/detail.jpg"></div>
		<div class="product-intro__size-radio-inner">M</div>
		<div class="product-intro__color-radio" title="Blue"></div>
	</div></body></html>`, name, price, name)
}

func listingURL(category string, page int) string {
	return fmt.Sprintf("%s/%s-cat.html?page=%d", testBaseURL, category, page)
}

func detailURL(id string) string {
	return fmt.Sprintf("%s/item-p-%s.html", testBaseURL, id)
}

func htmlPage(url, body string) *types.Page {
	return types.NewRenderedPage(url, url, []byte(body), 0)
}

func serverError(url string) error {
	return &types.FetchError{URL: url, StatusCode: 504, Err: errors.New("gateway timeout")}
}

func rateLimitError(url string, retryAfter time.Duration) error {
	return &types.FetchError{
		URL:        url,
		StatusCode: 429,
		RetryAfter: retryAfter,
		Err:        errors.New("rate limited"),
	}
}

func testCfg() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Source.BaseURL = testBaseURL
	cfg.Source.RenderJS = false
	cfg.Ingest.StartPage = 1
	cfg.Ingest.MaxPages = 10
	cfg.Ingest.PageSize = 0
	cfg.Ingest.Delay = 0
	cfg.Ingest.RateLimitCooldown = time.Millisecond
	cfg.Ingest.BatchSize = 100
	return cfg
}

// --- Pipeline Tests ---

func TestRunPersistsAndDegradesGracefully(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		switch url {
		case listingURL("women-dresses", 1):
			return htmlPage(url, listingPageHTML("101", "102")), nil
		case listingURL("women-dresses", 2):
			return htmlPage(url, listingPageHTML()), nil
		case detailURL("101"):
			return htmlPage(url, detailPageHTML("Enriched Dress", 8.50)), nil
		case detailURL("102"):
			return nil, serverError(url)
		}
		return nil, serverError(url)
	})
	store := newFakeStore()

	pipe := New(testCfg(), ff, store, testLogger)

	run, err := pipe.Run(context.Background(), []string{"women-dresses"})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if got := run.SummariesFound.Load(); got != 2 {
		t.Errorf("expected 2 summaries, got %d", got)
	}
	if got := run.DetailsFetched.Load(); got != 1 {
		t.Errorf("expected 1 detail fetched, got %d", got)
	}
	if got := run.DetailsFailed.Load(); got != 1 {
		t.Errorf("expected 1 detail failure, got %d", got)
	}
	if got := run.Persisted.Load(); got != 2 {
		t.Errorf("both products must persist, got %d", got)
	}

	enriched := store.get("101")
	if enriched == nil {
		t.Fatal("product 101 not persisted")
	}
	if enriched.Name != "Enriched Dress" {
		t.Errorf("detail name must win, got %q", enriched.Name)
	}
	if enriched.Price != 8.50 {
		t.Errorf("detail price must win, got %v", enriched.Price)
	}

	degraded := store.get("102")
	if degraded == nil {
		t.Fatal("product 102 must persist despite the detail failure")
	}
	if degraded.Name != "Product 102" {
		t.Errorf("summary name must back up the failed detail, got %q", degraded.Name)
	}
	if degraded.Description != types.DefaultDescription {
		t.Errorf("expected default description, got %q", degraded.Description)
	}
	if len(degraded.Sizes) != len(types.DefaultSizes) {
		t.Errorf("expected default sizes, got %v", degraded.Sizes)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	serve := func(url string, _ int) (*types.Page, error) {
		switch url {
		case listingURL("women-tops", 1):
			return htmlPage(url, listingPageHTML("201", "202")), nil
		case listingURL("women-tops", 2):
			return htmlPage(url, listingPageHTML()), nil
		case detailURL("201"), detailURL("202"):
			return htmlPage(url, detailPageHTML("Top", 5.00)), nil
		}
		return nil, serverError(url)
	}
	store := newFakeStore()
	pipe := New(testCfg(), newFakeFetcher(serve), store, testLogger)

	if _, err := pipe.Run(context.Background(), []string{"women-tops"}); err != nil {
		t.Fatalf("first run error: %v", err)
	}

	// Second run over the same catalog updates instead of duplicating.
	pipe2 := New(testCfg(), newFakeFetcher(serve), store, testLogger)
	run2, err := pipe2.Run(context.Background(), []string{"women-tops"})
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}

	if n, _ := store.Count(context.Background()); n != 2 {
		t.Errorf("expected 2 products after re-run, got %d", n)
	}
	if got := run2.Duplicates.Load(); got != 2 {
		t.Errorf("expected 2 duplicates on re-run, got %d", got)
	}
	store.mu.Lock()
	upserts := store.upserts
	store.mu.Unlock()
	if upserts != 2 {
		t.Errorf("existing products must be refreshed via upsert, got %d upserts", upserts)
	}
}

func TestRunCancellationFlushesCompletedBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		switch url {
		case listingURL("women-pants", 1):
			return htmlPage(url, listingPageHTML("301", "302", "303")), nil
		case listingURL("women-pants", 2):
			return htmlPage(url, listingPageHTML()), nil
		case detailURL("301"):
			return htmlPage(url, detailPageHTML("Pants One", 20)), nil
		case detailURL("302"):
			// Cancel mid-run; this product still completes its iteration.
			cancel()
			return htmlPage(url, detailPageHTML("Pants Two", 21)), nil
		case detailURL("303"):
			return htmlPage(url, detailPageHTML("Pants Three", 22)), nil
		}
		return nil, serverError(url)
	})
	store := newFakeStore()
	pipe := New(testCfg(), ff, store, testLogger)

	_, err := pipe.Run(ctx, []string{"women-pants"})
	if !errors.Is(err, types.ErrRunCanceled) {
		t.Fatalf("expected ErrRunCanceled, got %v", err)
	}

	if store.get("301") == nil || store.get("302") == nil {
		t.Error("products completed before cancellation must be flushed")
	}
	if ff.callCount(detailURL("303")) != 0 {
		t.Error("no new work may start after cancellation")
	}
	if n, _ := store.Count(context.Background()); n != 2 {
		t.Errorf("expected exactly 2 products, got %d", n)
	}
}

func TestRunFatalStoreErrorStopsRun(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		switch url {
		case listingURL("women-skirts", 1):
			return htmlPage(url, listingPageHTML("401", "402")), nil
		case listingURL("women-skirts", 2):
			return htmlPage(url, listingPageHTML()), nil
		default:
			return htmlPage(url, detailPageHTML("Skirt", 15)), nil
		}
	})
	store := newFakeStore()
	store.insertErr = &types.StoreError{Backend: "fake", Err: errors.New("disk full"), Fatal: true}

	cfg := testCfg()
	cfg.Ingest.BatchSize = 1 // flush per product

	pipe := New(cfg, ff, store, testLogger)

	run, err := pipe.Run(context.Background(), []string{"women-skirts"})
	var se *types.StoreError
	if !errors.As(err, &se) || !se.Fatal {
		t.Fatalf("expected fatal store error, got %v", err)
	}
	if got := run.StoreErrors.Load(); got == 0 {
		t.Error("expected store error counted")
	}
}

func TestIngestOne(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		return htmlPage(url, detailPageHTML("Single Jacket", 42.00)), nil
	})
	store := newFakeStore()
	pipe := New(testCfg(), ff, store, testLogger)

	product, err := pipe.IngestOne(context.Background(), detailURL("777"))
	if err != nil {
		t.Fatalf("ingest error: %v", err)
	}
	if product.SourceID != "777" {
		t.Errorf("expected source id from URL slug, got %q", product.SourceID)
	}
	if product.Name != "Single Jacket" {
		t.Errorf("unexpected name %q", product.Name)
	}
	if product.Category != types.DefaultCategory {
		t.Errorf("single ingestion gets the default category, got %q", product.Category)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Error("preview must not persist")
	}
}

func TestIngestOneSyntheticID(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		return htmlPage(url, detailPageHTML("No Slug", 1)), nil
	})
	pipe := New(testCfg(), ff, newFakeStore(), testLogger)

	product, err := pipe.IngestOne(context.Background(), testBaseURL+"/some/odd/path.html")
	if err != nil {
		t.Fatalf("ingest error: %v", err)
	}
	if !strings.HasPrefix(product.SourceID, "url-") {
		t.Errorf("expected synthetic id, got %q", product.SourceID)
	}
}

func TestIngestOneInvalidURL(t *testing.T) {
	pipe := New(testCfg(), newFakeFetcher(nil), newFakeStore(), testLogger)

	_, err := pipe.IngestOne(context.Background(), "not-a-url")
	if !errors.Is(err, types.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestSaveOne(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		return htmlPage(url, detailPageHTML("Saved Coat", 60)), nil
	})
	store := newFakeStore()
	pipe := New(testCfg(), ff, store, testLogger)

	product, err := pipe.SaveOne(context.Background(), detailURL("888"))
	if err != nil {
		t.Fatalf("save error: %v", err)
	}
	if saved := store.get("888"); saved == nil || saved.Name != product.Name {
		t.Errorf("product not upserted: %+v", saved)
	}
}

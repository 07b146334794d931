package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/observability"
	"github.com/trendhaul/catalog-ingest/internal/parser"
	"github.com/trendhaul/catalog-ingest/internal/types"
)

func newTestPaginator(cfg *config.Config, ff *fakeFetcher) (*Paginator, *Run) {
	profile := parser.DefaultProfile(cfg.Source.BaseURL)
	lp := parser.NewListingParser(profile, testLogger)
	metrics := observability.NewMetrics(testLogger)
	pg := NewPaginator(cfg, ff, lp, profile, metrics, testLogger)
	run := NewRun([]string{"test"}, cfg.Ingest.StartPage, cfg.Ingest.MaxPages)
	return pg, run
}

func TestPaginateStopsOnEmptyPage(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		switch url {
		case listingURL("women-dresses", 1):
			return htmlPage(url, listingPageHTML("1", "2")), nil
		case listingURL("women-dresses", 2):
			return htmlPage(url, listingPageHTML("3", "4")), nil
		case listingURL("women-dresses", 3):
			return htmlPage(url, listingPageHTML()), nil
		}
		return nil, serverError(url)
	})

	pg, run := newTestPaginator(testCfg(), ff)

	summaries, err := pg.Paginate(context.Background(), "women-dresses", run)
	if err != nil {
		t.Fatalf("paginate error: %v", err)
	}
	if len(summaries) != 4 {
		t.Errorf("expected 4 summaries, got %d", len(summaries))
	}
	if got := run.PagesFetched.Load(); got != 3 {
		t.Errorf("the empty terminator page counts as fetched; expected 3, got %d", got)
	}
	if ff.callCount(listingURL("women-dresses", 4)) != 0 {
		t.Error("pagination must stop at the empty page")
	}
}

func TestPaginateRespectsMaxPages(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		return htmlPage(url, listingPageHTML("1", "2")), nil
	})

	cfg := testCfg()
	cfg.Ingest.MaxPages = 2

	pg, run := newTestPaginator(cfg, ff)

	summaries, err := pg.Paginate(context.Background(), "women-tops", run)
	if err != nil {
		t.Fatalf("paginate error: %v", err)
	}
	if len(summaries) != 4 {
		t.Errorf("expected 2 pages x 2 summaries, got %d", len(summaries))
	}
	if ff.callCount(listingURL("women-tops", 3)) != 0 {
		t.Error("page 3 must not be requested with max_pages=2")
	}
	if got := run.PagesFetched.Load(); got != 2 {
		t.Errorf("expected 2 pages fetched, got %d", got)
	}
}

func TestPaginateRateLimitRetriesSamePage(t *testing.T) {
	ff := newFakeFetcher(func(url string, call int) (*types.Page, error) {
		switch url {
		case listingURL("women-pants", 1):
			if call == 0 {
				return nil, rateLimitError(url, 5*time.Millisecond)
			}
			return htmlPage(url, listingPageHTML("1")), nil
		case listingURL("women-pants", 2):
			return htmlPage(url, listingPageHTML()), nil
		}
		return nil, serverError(url)
	})

	pg, run := newTestPaginator(testCfg(), ff)

	summaries, err := pg.Paginate(context.Background(), "women-pants", run)
	if err != nil {
		t.Fatalf("paginate error: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("expected the rate-limited page's summary, got %d", len(summaries))
	}
	if got := ff.callCount(listingURL("women-pants", 1)); got != 2 {
		t.Errorf("page 1 must be retried after cooldown, got %d fetches", got)
	}
	if got := run.RateLimitWaits.Load(); got != 1 {
		t.Errorf("expected 1 rate limit wait, got %d", got)
	}
	if got := run.PagesFailed.Load(); got != 0 {
		t.Errorf("a rate-limited page is not a failed page, got %d", got)
	}
}

func TestPaginateRateLimitRetryBudget(t *testing.T) {
	url1 := listingURL("women-skirts", 1)
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		return nil, rateLimitError(url, time.Millisecond)
	})

	cfg := testCfg()
	cfg.Ingest.MaxRateLimitRetries = 2

	pg, run := newTestPaginator(cfg, ff)

	summaries, err := pg.Paginate(context.Background(), "women-skirts", run)
	if err != nil {
		t.Fatalf("paginate error: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected no summaries, got %d", len(summaries))
	}
	// initial attempt + 2 retries
	if got := ff.callCount(url1); got != 3 {
		t.Errorf("expected 3 attempts at page 1, got %d", got)
	}
	if got := run.PagesFailed.Load(); got != 1 {
		t.Errorf("expected the page recorded as failed, got %d", got)
	}
}

func TestPaginateSkipsFailedPage(t *testing.T) {
	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		switch url {
		case listingURL("women-sweaters", 1):
			return nil, serverError(url)
		case listingURL("women-sweaters", 2):
			return htmlPage(url, listingPageHTML("9")), nil
		case listingURL("women-sweaters", 3):
			return htmlPage(url, listingPageHTML()), nil
		}
		return nil, serverError(url)
	})

	pg, run := newTestPaginator(testCfg(), ff)

	summaries, err := pg.Paginate(context.Background(), "women-sweaters", run)
	if err != nil {
		t.Fatalf("paginate error: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("expected page 2's summary despite page 1 failing, got %d", len(summaries))
	}
	if got := run.PagesFailed.Load(); got != 1 {
		t.Errorf("expected 1 failed page, got %d", got)
	}
	if got := run.PagesFetched.Load(); got != 2 {
		t.Errorf("expected 2 pages fetched, got %d", got)
	}
}

func TestPaginateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ff := newFakeFetcher(func(url string, _ int) (*types.Page, error) {
		if url == listingURL("women-dresses", 2) {
			cancel()
		}
		return htmlPage(url, listingPageHTML("1")), nil
	})

	pg, run := newTestPaginator(testCfg(), ff)

	summaries, err := pg.Paginate(ctx, "women-dresses", run)
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(summaries) == 0 {
		t.Error("partial summaries must be returned on cancellation")
	}
	if got := run.PagesFetched.Load(); got == 0 {
		t.Error("pages fetched before cancellation must be counted")
	}
}

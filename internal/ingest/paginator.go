package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/fetcher"
	"github.com/trendhaul/catalog-ingest/internal/observability"
	"github.com/trendhaul/catalog-ingest/internal/parser"
	"github.com/trendhaul/catalog-ingest/internal/types"
)

// paginatorState is the pagination driver's explicit state.
type paginatorState int

const (
	stateFetching paginatorState = iota
	stateRateLimited
	stateDone
)

func (s paginatorState) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateRateLimited:
		return "rate_limited"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Paginator walks the listing pages of one category, accumulating
// product summaries until the source signals end-of-catalog (an empty
// page), the page limit is reached, or the context is canceled.
//
// Error policy, applied consistently:
//   - HTTP 429 enters a cooldown and retries the SAME page number;
//     forward progress never skips a rate-limited page.
//   - Any other fetch or parse failure skips to the next page and is
//     recorded in the run's failure counter. A single bad page never
//     aborts the category.
type Paginator struct {
	fetcher fetcher.Fetcher
	parser  *parser.ListingParser
	profile *parser.SiteProfile
	cfg     *config.Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPaginator creates the pagination driver for one pipeline.
func NewPaginator(cfg *config.Config, f fetcher.Fetcher, lp *parser.ListingParser,
	profile *parser.SiteProfile, metrics *observability.Metrics, logger *slog.Logger) *Paginator {
	return &Paginator{
		fetcher: f,
		parser:  lp,
		profile: profile,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "paginator"),
	}
}

// Paginate runs the state machine for one category and returns the
// summaries found. On cancellation it returns the partial result
// together with the context error.
func (p *Paginator) Paginate(ctx context.Context, category string, run *Run) ([]types.ProductSummary, error) {
	ing := &p.cfg.Ingest
	page := ing.StartPage
	state := stateFetching
	rateLimitRetries := 0

	var all []types.ProductSummary
	var lastRetryAfter time.Duration

	for state != stateDone {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		switch state {
		case stateFetching:
			url := p.profile.ListingURL(category, page, ing.PageSize)
			p.metrics.FetchesTotal.Add(1)

			pg, err := p.fetcher.Fetch(ctx, url, p.listingOptions())
			if err != nil {
				p.metrics.FetchesFailed.Add(1)

				var fe *types.FetchError
				if errors.As(err, &fe) && fe.IsRateLimit() {
					p.metrics.RateLimitHits.Add(1)
					lastRetryAfter = fe.RetryAfter
					state = stateRateLimited
					continue
				}

				// Skip-and-continue: record the page, move on.
				run.PagesFailed.Add(1)
				p.logger.Warn("listing page failed, skipping",
					"category", category, "page", page, "error", err)
				if ing.MaxPages > 0 && page >= ing.MaxPages {
					state = stateDone
					continue
				}
				page++
				if err := sleepCtx(ctx, ing.Delay); err != nil {
					return all, err
				}
				continue
			}

			rateLimitRetries = 0
			run.PagesFetched.Add(1)

			summaries, perr := p.parser.Parse(pg, category)
			if perr != nil {
				run.PagesFailed.Add(1)
				p.logger.Warn("listing page unparseable, skipping",
					"category", category, "page", page, "error", perr)
				summaries = nil
			} else {
				p.metrics.PagesParsed.Add(1)
			}

			// Empty page: the source has run out of catalog.
			if perr == nil && len(summaries) == 0 {
				p.logger.Info("end of catalog", "category", category, "page", page)
				state = stateDone
				continue
			}

			all = append(all, summaries...)
			run.SummariesFound.Add(int64(len(summaries)))
			p.metrics.SummariesParsed.Add(int64(len(summaries)))

			if ing.MaxPages > 0 && page >= ing.MaxPages {
				state = stateDone
				continue
			}
			page++
			if err := sleepCtx(ctx, ing.Delay); err != nil {
				return all, err
			}

		case stateRateLimited:
			rateLimitRetries++
			run.RateLimitWaits.Add(1)

			// MaxRateLimitRetries == 0 waits indefinitely.
			if ing.MaxRateLimitRetries > 0 && rateLimitRetries > ing.MaxRateLimitRetries {
				run.PagesFailed.Add(1)
				p.logger.Warn("rate limit retry budget spent, stopping category",
					"category", category, "page", page, "retries", rateLimitRetries-1)
				state = stateDone
				continue
			}

			cooldown := ing.RateLimitCooldown
			if lastRetryAfter > cooldown {
				cooldown = lastRetryAfter
			}
			p.logger.Info("rate limited, cooling down",
				"category", category, "page", page, "cooldown", cooldown)
			if err := sleepCtx(ctx, cooldown); err != nil {
				return all, err
			}
			state = stateFetching // same page retried, not advanced
		}
	}

	return all, nil
}

func (p *Paginator) listingOptions() fetcher.Options {
	opts := fetcher.DefaultOptions()
	opts.RenderJS = p.cfg.Source.RenderJS
	opts.WaitSelector = p.profile.ListingReady
	return opts
}

// sleepCtx is the pipeline's single suspension primitive: a fixed
// delay that aborts promptly on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

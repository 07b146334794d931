package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/trendhaul/catalog-ingest/internal/catalog"
	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/fetcher"
	"github.com/trendhaul/catalog-ingest/internal/observability"
	"github.com/trendhaul/catalog-ingest/internal/parser"
	"github.com/trendhaul/catalog-ingest/internal/types"
)

// Pipeline is the top-level ingestion orchestrator. One run walks the
// given categories sequentially (one page, one detail fetch at a
// time), merges summaries with detail records, dedups against the
// store by source id, and persists in batches.
//
// Requests are sequential on purpose: the source rate-limits and
// blocks aggressive clients, and the upsert key makes a single
// worker sufficient without locking.
type Pipeline struct {
	cfg       *config.Config
	fetcher   fetcher.Fetcher
	store     catalog.Store
	profile   *parser.SiteProfile
	listing   *parser.ListingParser
	detail    *parser.DetailParser
	paginator *Paginator
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithProfile overrides the default site selector profile.
func WithProfile(profile *parser.SiteProfile) Option {
	return func(p *Pipeline) { p.profile = profile }
}

// WithMetrics attaches a shared metrics registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline. The fetcher and store are owned by the
// caller; the pipeline never closes them.
func New(cfg *config.Config, f fetcher.Fetcher, store catalog.Store, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		fetcher: f,
		store:   store,
		logger:  logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.profile == nil {
		p.profile = parser.DefaultProfile(cfg.Source.BaseURL)
	}
	if p.metrics == nil {
		p.metrics = observability.NewMetrics(logger)
	}

	p.listing = parser.NewListingParser(p.profile, logger)
	p.detail = parser.NewDetailParser(p.profile, logger)
	p.paginator = NewPaginator(cfg, f, p.listing, p.profile, p.metrics, logger)
	return p
}

// Run ingests the given categories and returns the run counters.
// Page and detail failures are absorbed into counters; only a fatal
// store failure or cancellation ends the run early, and both return
// the partial counters accumulated so far.
func (p *Pipeline) Run(ctx context.Context, categories []string) (*Run, error) {
	run := NewRun(categories, p.cfg.Ingest.StartPage, p.cfg.Ingest.MaxPages)

	p.metrics.RunsStarted.Add(1)
	p.metrics.ActiveRuns.Add(1)
	defer func() {
		p.metrics.ActiveRuns.Add(-1)
		p.metrics.RunsCompleted.Add(1)
		run.Duration = time.Since(run.StartedAt)
	}()

	batch := make([]*types.CanonicalProduct, 0, p.cfg.Ingest.BatchSize)

	// flush persists the completed batch. It runs on every exit path,
	// including cancellation: a canceled run keeps the products it
	// already assembled.
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := p.store.InsertMany(context.WithoutCancel(ctx), batch)
		run.Persisted.Add(int64(inserted))
		p.metrics.ProductsPersisted.Add(int64(inserted))
		p.metrics.BatchesFlushed.Add(1)
		batch = batch[:0]
		if err != nil {
			run.StoreErrors.Add(1)
			var se *types.StoreError
			if errors.As(err, &se) && se.Fatal {
				return err
			}
			p.logger.Error("batch flush failed, continuing", "error", err)
		}
		return nil
	}

	for _, category := range categories {
		if ctx.Err() != nil {
			break
		}
		p.logger.Info("ingesting category", "category", category,
			"start_page", p.cfg.Ingest.StartPage, "max_pages", p.cfg.Ingest.MaxPages)

		summaries, perr := p.paginator.Paginate(ctx, category, run)

		for _, sum := range summaries {
			// Cancellation is checked between requests so a stop
			// lands cleanly on an iteration boundary.
			if ctx.Err() != nil {
				break
			}
			if err := p.ingestSummary(ctx, sum, run, &batch, flush); err != nil {
				_ = flush() // keep the completed batch; the fatal error wins
				return run, err
			}
		}

		if perr != nil {
			break
		}

		// Remainder of the category flushes before the next one starts.
		if err := flush(); err != nil {
			return run, err
		}
	}

	if err := flush(); err != nil {
		return run, err
	}

	if ctx.Err() != nil {
		p.logger.Info("run canceled", "counters", run.Snapshot())
		return run, types.ErrRunCanceled
	}

	p.logger.Info("run complete", "counters", run.Snapshot())
	return run, nil
}

// ingestSummary enriches one summary, merges it, and routes it to the
// batch (new product) or an immediate upsert (already in the store).
// A fatal store error is the only error it returns.
func (p *Pipeline) ingestSummary(ctx context.Context, sum types.ProductSummary, run *Run,
	batch *[]*types.CanonicalProduct, flush func() error) error {

	if err := sleepCtx(ctx, p.cfg.Ingest.Delay); err != nil {
		return nil // cancellation is handled by the caller's loop check
	}

	det := p.fetchDetail(ctx, sum, run)
	product := types.MergeProduct(sum, det)

	exists, err := p.store.HasSourceID(ctx, product.SourceID)
	if err != nil {
		run.StoreErrors.Add(1)
		var se *types.StoreError
		if errors.As(err, &se) && se.Fatal {
			return err
		}
		p.logger.Warn("dedup lookup failed, treating as new", "source_id", product.SourceID, "error", err)
	}

	if exists {
		run.Duplicates.Add(1)
		p.metrics.ProductsDuplicate.Add(1)
		if err := p.store.UpsertOne(ctx, &product); err != nil {
			run.StoreErrors.Add(1)
			var se *types.StoreError
			if errors.As(err, &se) && se.Fatal {
				return err
			}
			p.logger.Error("upsert failed, continuing", "source_id", product.SourceID, "error", err)
			return nil
		}
		run.Persisted.Add(1)
		p.metrics.ProductsPersisted.Add(1)
		return nil
	}

	*batch = append(*batch, &product)
	if len(*batch) >= p.cfg.Ingest.BatchSize {
		return flush()
	}
	return nil
}

// fetchDetail retrieves and parses one detail page. Failure yields a
// zero ProductDetail: the product is still persisted from summary
// data with defaulted detail fields, maximizing catalog coverage.
func (p *Pipeline) fetchDetail(ctx context.Context, sum types.ProductSummary, run *Run) types.ProductDetail {
	p.metrics.FetchesTotal.Add(1)

	pg, err := p.fetcher.Fetch(ctx, sum.DetailURL, p.detailOptions())
	if err != nil {
		run.DetailsFailed.Add(1)
		p.metrics.FetchesFailed.Add(1)
		p.metrics.DetailsFailed.Add(1)
		p.logger.Warn("detail fetch failed, persisting with defaults",
			"source_id", sum.ExternalID, "url", sum.DetailURL, "error", err)
		return types.ProductDetail{}
	}

	run.DetailsFetched.Add(1)
	det := p.detail.Parse(pg)
	p.metrics.DetailsParsed.Add(1)
	return det
}

// IngestOne fetches and parses a single product detail page without
// persisting it, for the admin preview affordance. Unlike bulk runs,
// a detail-fetch failure here is an error: there is no summary to
// fall back on.
func (p *Pipeline) IngestOne(ctx context.Context, detailURL string) (*types.CanonicalProduct, error) {
	if err := config.ValidateURL(detailURL); err != nil {
		return nil, errors.Join(types.ErrInvalidURL, err)
	}

	pg, err := p.fetcher.Fetch(ctx, detailURL, p.detailOptions())
	if err != nil {
		return nil, err
	}

	det := p.detail.Parse(pg)

	sum := types.ProductSummary{
		ExternalID: parser.IDFromDetailURL(detailURL),
		DetailURL:  detailURL,
	}
	if sum.ExternalID == "" {
		sum.ExternalID = syntheticID(detailURL)
	}

	product := types.MergeProduct(sum, det)
	return &product, nil
}

// SaveOne ingests a single product and upserts it into the catalog.
func (p *Pipeline) SaveOne(ctx context.Context, detailURL string) (*types.CanonicalProduct, error) {
	product, err := p.IngestOne(ctx, detailURL)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpsertOne(ctx, product); err != nil {
		return nil, err
	}
	p.metrics.ProductsPersisted.Add(1)
	return product, nil
}

func (p *Pipeline) detailOptions() fetcher.Options {
	opts := fetcher.DefaultOptions()
	opts.RenderJS = p.cfg.Source.RenderJS
	opts.WaitSelector = p.profile.DetailReady
	return opts
}

// syntheticID derives a stable id for URLs that don't carry one.
func syntheticID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "url-" + hex.EncodeToString(sum[:6])
}

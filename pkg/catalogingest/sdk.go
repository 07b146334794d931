// Package catalogingest provides a public SDK for embedding the catalog
// ingestion pipeline as a library.
//
// Example usage:
//
//	client, err := catalogingest.NewClient(
//	    catalogingest.WithBaseURL("https://us.shein.com"),
//	    catalogingest.WithMaxPages(5),
//	    catalogingest.WithJSONOutput("./products.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	run, err := client.IngestCategories(context.Background(), "women-dresses")
package catalogingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/trendhaul/catalog-ingest/internal/catalog"
	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/fetcher"
	"github.com/trendhaul/catalog-ingest/internal/ingest"
	"github.com/trendhaul/catalog-ingest/internal/types"
)

// Client is the high-level API for running catalog ingestion as a library.
type Client struct {
	cfg      *config.Config
	pipeline *ingest.Pipeline
	fetcher  fetcher.Fetcher
	store    catalog.Store
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*config.Config)

// WithBaseURL sets the storefront base URL.
func WithBaseURL(u string) Option {
	return func(c *config.Config) { c.Source.BaseURL = u }
}

// WithCategories sets the default category tags to ingest.
func WithCategories(tags ...string) Option {
	return func(c *config.Config) { c.Source.Categories = tags }
}

// WithMaxPages caps the number of listing pages per category.
func WithMaxPages(n int) Option {
	return func(c *config.Config) { c.Ingest.MaxPages = n }
}

// WithStartPage sets the first listing page to fetch.
func WithStartPage(n int) Option {
	return func(c *config.Config) { c.Ingest.StartPage = n }
}

// WithDelay sets the politeness delay between requests.
func WithDelay(d time.Duration) Option {
	return func(c *config.Config) { c.Ingest.Delay = d }
}

// WithBatchSize sets how many new products are buffered before a bulk write.
func WithBatchSize(n int) Option {
	return func(c *config.Config) { c.Ingest.BatchSize = n }
}

// WithBrowser enables headless browser rendering for every fetch.
func WithBrowser() Option {
	return func(c *config.Config) {
		c.Fetcher.Type = "browser"
		c.Source.RenderJS = true
	}
}

// WithMongo stores products in the given MongoDB database and collection.
func WithMongo(uri, database, collection string) Option {
	return func(c *config.Config) {
		c.Store.Type = "mongo"
		c.Store.URI = uri
		c.Store.Database = database
		c.Store.Collection = collection
	}
}

// WithJSONOutput stores products as a JSON file at the given path.
func WithJSONOutput(path string) Option {
	return func(c *config.Config) {
		c.Store.Type = "json"
		c.Store.OutputPath = path
	}
}

// WithUserAgent sets a single custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *config.Config) { c.Source.UserAgents = []string{ua} }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// NewClient creates a Client with the given options and opens the
// configured store and fetcher.
func NewClient(opts ...Option) (*Client, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	f, err := NewFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	store, err := NewStore(context.Background(), cfg, logger)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create store: %w", err)
	}

	return &Client{
		cfg:      cfg,
		pipeline: ingest.New(cfg, f, store, logger),
		fetcher:  f,
		store:    store,
		logger:   logger,
	}, nil
}

// NewFetcher builds a fetcher from the configuration. Exposed so
// embedders can construct the pieces themselves.
func NewFetcher(cfg *config.Config, logger *slog.Logger) (fetcher.Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "browser":
		return fetcher.NewBrowserFetcher(cfg, logger)
	case "http", "":
		return fetcher.NewHTTPFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
}

// NewStore builds a product store from the configuration.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Store, error) {
	switch cfg.Store.Type {
	case "mongo", "":
		return catalog.NewMongoStore(cfg.Store.URI, cfg.Store.Database, cfg.Store.Collection, logger)
	case "json":
		return catalog.NewJSONStore(cfg.Store.OutputPath, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// IngestCategories runs the full pipeline over the given category tags.
// With no arguments it uses the configured default categories.
func (c *Client) IngestCategories(ctx context.Context, categories ...string) (*ingest.Run, error) {
	if len(categories) == 0 {
		categories = c.cfg.Source.Categories
	}
	return c.pipeline.Run(ctx, categories)
}

// IngestOne scrapes a single product detail page without persisting it.
func (c *Client) IngestOne(ctx context.Context, detailURL string) (*types.CanonicalProduct, error) {
	return c.pipeline.IngestOne(ctx, detailURL)
}

// SaveOne scrapes a single product detail page and upserts it into the store.
func (c *Client) SaveOne(ctx context.Context, detailURL string) (*types.CanonicalProduct, error) {
	return c.pipeline.SaveOne(ctx, detailURL)
}

// Pipeline exposes the underlying pipeline, e.g. for serving the admin API.
func (c *Client) Pipeline() *ingest.Pipeline { return c.pipeline }

// Close releases the fetcher and flushes and closes the store.
func (c *Client) Close(ctx context.Context) error {
	ferr := c.fetcher.Close()
	serr := c.store.Close(ctx)
	if ferr != nil {
		return ferr
	}
	return serr
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trendhaul/catalog-ingest/internal/api"
	"github.com/trendhaul/catalog-ingest/internal/catalog"
	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/fetcher"
	"github.com/trendhaul/catalog-ingest/internal/ingest"
	"github.com/trendhaul/catalog-ingest/internal/observability"
)

var (
	cfgFile     string
	verbose     bool
	baseURL     string
	fetcherType string
	storeType   string
	outputPath  string
	mongoURI    string
	startPage   int
	maxPages    int
	delay       string
	batchSize   int
	apiPort     int
	save        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "catalogd",
		Short: "catalogd: storefront catalog ingestion daemon",
		Long: `catalogd ingests product catalogs from third-party storefronts into a
canonical product store.

Features:
  • Paginated category listing traversal with end-of-catalog detection
  • Per-product detail enrichment with graceful degradation
  • Rate-limit aware pagination (429 cooldown and same-page retry)
  • Idempotent persistence into MongoDB or a JSON file
  • Single-product preview and save
  • Admin HTTP API for launching and inspecting runs
  • Prometheus metrics endpoint`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(productCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ingestCmd creates the "ingest" subcommand.
func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [category...]",
		Short: "Ingest one or more category catalogs",
		Long: "Walk the listing pages of the given category tags, enrich each product\n" +
			"from its detail page and persist the results. With no arguments the\n" +
			"configured default categories are used.",
		RunE: runIngest,
	}

	addSourceFlags(cmd)
	addStoreFlags(cmd)
	cmd.Flags().IntVar(&startPage, "start-page", 0, "first listing page to fetch (0 = config default)")
	cmd.Flags().IntVarP(&maxPages, "max-pages", "m", 0, "maximum listing pages per category (0 = unlimited)")
	cmd.Flags().StringVar(&delay, "delay", "", "politeness delay between requests, e.g. 2s")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "products buffered before a bulk insert (0 = config default)")

	return cmd
}

// productCmd creates the "product" subcommand for single-URL scraping.
func productCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product [url]",
		Short: "Scrape a single product detail page",
		Long:  "Fetch and parse one product detail URL. By default the result is printed; with --save it is also upserted into the store.",
		Args:  cobra.ExactArgs(1),
		RunE:  runProduct,
	}

	addSourceFlags(cmd)
	addStoreFlags(cmd)
	cmd.Flags().BoolVar(&save, "save", false, "persist the scraped product into the store")

	return cmd
}

// serveCmd creates the "serve" subcommand running the admin API.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin scraper API",
		Long:  "Start the HTTP API for previewing products and launching bulk runs.",
		RunE:  runServe,
	}

	addSourceFlags(cmd)
	addStoreFlags(cmd)
	cmd.Flags().IntVarP(&apiPort, "port", "p", 0, "API listen port (0 = config default)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	categories := args
	if len(categories) == 0 {
		categories = cfg.Source.Categories
	}
	if len(categories) == 0 {
		return fmt.Errorf("no categories given and none configured")
	}

	f, store, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []ingest.Option
	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics(logger)
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		opts = append(opts, ingest.WithMetrics(metrics))
	}

	pipe := ingest.New(cfg, f, store, logger, opts...)

	ctx, cancel := signalContext(logger)
	defer cancel()

	logger.Info("starting ingestion",
		"categories", categories,
		"start_page", cfg.Ingest.StartPage,
		"max_pages", cfg.Ingest.MaxPages,
		"store", store.Name(),
	)

	run, runErr := pipe.Run(ctx, categories)

	// flush the store even when the run was cut short
	if err := store.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Error("store close error", "error", err)
	}

	if run != nil {
		s := run.Snapshot()
		fmt.Printf("\nIngestion finished in %s\n", run.Duration.Round(time.Millisecond))
		fmt.Printf("   Pages:     %v fetched, %v failed\n", s["pages_fetched"], s["pages_failed"])
		fmt.Printf("   Products:  %v found, %v persisted, %v updated\n",
			s["summaries_found"], s["persisted"], s["duplicates"])
		fmt.Printf("   Details:   %v fetched, %v degraded to defaults\n",
			s["details_fetched"], s["details_failed"])
		if s["rate_limit_waits"] != int64(0) {
			fmt.Printf("   Rate limit waits: %v\n", s["rate_limit_waits"])
		}
	}

	return runErr
}

func runProduct(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateURL(args[0]); err != nil {
		return fmt.Errorf("invalid URL %q: %w", args[0], err)
	}

	f, store, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer f.Close()

	pipe := ingest.New(cfg, f, store, logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	scrape := pipe.IngestOne
	if save {
		scrape = pipe.SaveOne
	}

	product, err := scrape(ctx, args[0])
	if err != nil {
		store.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("scrape product: %w", err)
	}

	if err := store.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Error("store close error", "error", err)
	}

	fmt.Printf("Name:        %s\n", product.Name)
	fmt.Printf("Source ID:   %s\n", product.SourceID)
	fmt.Printf("Price:       %.2f (was %.2f)\n", product.Price, product.OriginalPrice)
	fmt.Printf("Category:    %s\n", product.Category)
	fmt.Printf("Sizes:       %s\n", strings.Join(product.Sizes, ", "))
	fmt.Printf("Colors:      %s\n", strings.Join(product.Colors, ", "))
	fmt.Printf("Images:      %d\n", len(product.Images))
	if save {
		fmt.Printf("Saved to:    %s\n", store.Name())
	}

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}

	f, store, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []ingest.Option
	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics(logger)
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		opts = append(opts, ingest.WithMetrics(metrics))
	}

	pipe := ingest.New(cfg, f, store, logger, opts...)

	server := api.NewServer(cfg.API.Port, pipe, logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()
	<-ctx.Done()

	logger.Info("shutting down")
	if err := store.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Error("store close error", "error", err)
	}
	return nil
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Source:\n")
			fmt.Printf("  Base URL:          %s\n", cfg.Source.BaseURL)
			fmt.Printf("  Categories:        %s\n", strings.Join(cfg.Source.Categories, ", "))
			fmt.Printf("  Render JS:         %v\n", cfg.Source.RenderJS)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Source.UserAgents))
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Max Retries:       %d\n", cfg.Fetcher.MaxRetries)
			fmt.Printf("  Follow Redirects:  %v\n", cfg.Fetcher.FollowRedirects)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nIngest:\n")
			fmt.Printf("  Start Page:        %d\n", cfg.Ingest.StartPage)
			fmt.Printf("  Max Pages:         %d\n", cfg.Ingest.MaxPages)
			fmt.Printf("  Delay:             %s\n", cfg.Ingest.Delay)
			fmt.Printf("  Rate Limit Cooldown: %s\n", cfg.Ingest.RateLimitCooldown)
			fmt.Printf("  Batch Size:        %d\n", cfg.Ingest.BatchSize)
			fmt.Printf("\nStore:\n")
			fmt.Printf("  Type:              %s\n", cfg.Store.Type)
			fmt.Printf("  Database:          %s\n", cfg.Store.Database)
			fmt.Printf("  Collection:        %s\n", cfg.Store.Collection)
			fmt.Printf("  Output Path:       %s\n", cfg.Store.OutputPath)
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.API.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.API.Port)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("catalogd %s\n", config.Version)
		},
	}
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&baseURL, "base-url", "", "storefront base URL")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http or browser")
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&storeType, "store", "", "store type: mongo or json")
	cmd.Flags().StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection URI")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path for the json store")
}

// setupLogger creates a structured logger.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler)
}

// loadConfig loads the config file, applies CLI overrides and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if baseURL != "" {
		cfg.Source.BaseURL = baseURL
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if storeType != "" {
		cfg.Store.Type = strings.ToLower(storeType)
	}
	if mongoURI != "" {
		cfg.Store.URI = mongoURI
	}
	if outputPath != "" {
		cfg.Store.OutputPath = outputPath
	}
	if startPage > 0 {
		cfg.Ingest.StartPage = startPage
	}
	if maxPages > 0 {
		cfg.Ingest.MaxPages = maxPages
	}
	if delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			cfg.Ingest.Delay = d
		}
	}
	if batchSize > 0 {
		cfg.Ingest.BatchSize = batchSize
	}
}

// buildComponents constructs the fetcher and store from the config.
func buildComponents(cfg *config.Config, logger *slog.Logger) (fetcher.Fetcher, catalog.Store, error) {
	var f fetcher.Fetcher
	var err error
	switch cfg.Fetcher.Type {
	case "browser":
		f, err = fetcher.NewBrowserFetcher(cfg, logger)
	default:
		f, err = fetcher.NewHTTPFetcher(cfg, logger)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create fetcher: %w", err)
	}

	var store catalog.Store
	switch cfg.Store.Type {
	case "json":
		store, err = catalog.NewJSONStore(cfg.Store.OutputPath, logger)
	default:
		store, err = catalog.NewMongoStore(cfg.Store.URI, cfg.Store.Database, cfg.Store.Collection, logger)
	}
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return f, store, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", "signal", sig)
		cancel()
	}()

	return ctx, cancel
}

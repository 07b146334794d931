package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for the ingestion pipeline.
type Metrics struct {
	// Fetch metrics
	FetchesTotal  atomic.Int64
	FetchesFailed atomic.Int64
	RateLimitHits atomic.Int64

	// Parse metrics
	PagesParsed     atomic.Int64
	SummariesParsed atomic.Int64
	DetailsParsed   atomic.Int64
	DetailsFailed   atomic.Int64

	// Persistence metrics
	ProductsPersisted atomic.Int64
	ProductsDuplicate atomic.Int64
	BatchesFlushed    atomic.Int64

	// Run metrics
	RunsStarted   atomic.Int64
	RunsCompleted atomic.Int64
	ActiveRuns    atomic.Int32

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		kind  string
		value int64
	}{
		{"catalog_ingest_fetches_total", "Total page fetches attempted", "counter", m.FetchesTotal.Load()},
		{"catalog_ingest_fetches_failed_total", "Total page fetches that failed", "counter", m.FetchesFailed.Load()},
		{"catalog_ingest_rate_limit_hits_total", "Total HTTP 429 cooldowns entered", "counter", m.RateLimitHits.Load()},
		{"catalog_ingest_pages_parsed_total", "Total listing pages parsed", "counter", m.PagesParsed.Load()},
		{"catalog_ingest_summaries_parsed_total", "Total product summaries parsed", "counter", m.SummariesParsed.Load()},
		{"catalog_ingest_details_parsed_total", "Total detail pages parsed", "counter", m.DetailsParsed.Load()},
		{"catalog_ingest_details_failed_total", "Total detail fetches that failed", "counter", m.DetailsFailed.Load()},
		{"catalog_ingest_products_persisted_total", "Total products persisted", "counter", m.ProductsPersisted.Load()},
		{"catalog_ingest_products_duplicate_total", "Total products upserted over existing rows", "counter", m.ProductsDuplicate.Load()},
		{"catalog_ingest_batches_flushed_total", "Total batches flushed to the store", "counter", m.BatchesFlushed.Load()},
		{"catalog_ingest_runs_started_total", "Total ingestion runs started", "counter", m.RunsStarted.Load()},
		{"catalog_ingest_runs_completed_total", "Total ingestion runs completed", "counter", m.RunsCompleted.Load()},
		{"catalog_ingest_active_runs", "Currently active runs", "gauge", int64(m.ActiveRuns.Load())},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"fetches_total":      m.FetchesTotal.Load(),
		"fetches_failed":     m.FetchesFailed.Load(),
		"rate_limit_hits":    m.RateLimitHits.Load(),
		"pages_parsed":       m.PagesParsed.Load(),
		"summaries_parsed":   m.SummariesParsed.Load(),
		"details_parsed":     m.DetailsParsed.Load(),
		"details_failed":     m.DetailsFailed.Load(),
		"products_persisted": m.ProductsPersisted.Load(),
		"products_duplicate": m.ProductsDuplicate.Load(),
		"batches_flushed":    m.BatchesFlushed.Load(),
		"runs_started":       m.RunsStarted.Load(),
		"runs_completed":     m.RunsCompleted.Load(),
		"active_runs":        int64(m.ActiveRuns.Load()),
	}
}

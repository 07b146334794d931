package ingest

import (
	"sync/atomic"
	"time"
)

// Run holds the in-memory bookkeeping for one pipeline invocation.
// It is never persisted; callers read the counters after (or, via
// Snapshot, during) the run. Counters are atomics only so the admin
// API can observe an in-flight run; the run itself is owned by a
// single sequential worker.
type Run struct {
	Categories []string
	StartPage  int
	MaxPages   int
	StartedAt  time.Time
	Duration   time.Duration

	PagesFetched   atomic.Int64
	PagesFailed    atomic.Int64
	SummariesFound atomic.Int64
	DetailsFetched atomic.Int64
	DetailsFailed  atomic.Int64
	Persisted      atomic.Int64
	Duplicates     atomic.Int64
	RateLimitWaits atomic.Int64
	StoreErrors    atomic.Int64
}

// NewRun creates the bookkeeping record for one invocation.
func NewRun(categories []string, startPage, maxPages int) *Run {
	return &Run{
		Categories: categories,
		StartPage:  startPage,
		MaxPages:   maxPages,
		StartedAt:  time.Now(),
	}
}

// Snapshot returns a copy of the counters safe for serialization.
func (r *Run) Snapshot() map[string]any {
	elapsed := r.Duration
	if elapsed == 0 {
		elapsed = time.Since(r.StartedAt)
	}
	return map[string]any{
		"categories":       r.Categories,
		"start_page":       r.StartPage,
		"max_pages":        r.MaxPages,
		"pages_fetched":    r.PagesFetched.Load(),
		"pages_failed":     r.PagesFailed.Load(),
		"summaries_found":  r.SummariesFound.Load(),
		"details_fetched":  r.DetailsFetched.Load(),
		"details_failed":   r.DetailsFailed.Load(),
		"persisted":        r.Persisted.Load(),
		"duplicates":       r.Duplicates.Load(),
		"rate_limit_waits": r.RateLimitWaits.Load(),
		"store_errors":     r.StoreErrors.Load(),
		"elapsed":          elapsed.String(),
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/trendhaul/catalog-ingest/internal/config"
	"github.com/trendhaul/catalog-ingest/internal/ingest"
	"github.com/trendhaul/catalog-ingest/internal/types"
)

// Ingestor is the surface the admin API needs from the pipeline.
type Ingestor interface {
	IngestOne(ctx context.Context, detailURL string) (*types.CanonicalProduct, error)
	SaveOne(ctx context.Context, detailURL string) (*types.CanonicalProduct, error)
	Run(ctx context.Context, categories []string) (*ingest.Run, error)
}

// RunJob tracks one bulk ingestion launched through the API.
type RunJob struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"` // running, done, failed, canceled
	Categories []string       `json:"categories"`
	StartedAt  time.Time      `json:"started_at"`
	Error      string         `json:"error,omitempty"`
	Counters   map[string]any `json:"counters,omitempty"`

	run    *ingest.Run
	cancel context.CancelFunc
}

// Server is the admin scraper API: preview/save a single product and
// launch or inspect bulk category runs.
type Server struct {
	mux      *http.ServeMux
	port     int
	logger   *slog.Logger
	ingestor Ingestor

	jobs   map[string]*RunJob
	jobsMu sync.RWMutex
	nextID int
}

// NewServer creates an admin API server around the given ingestor.
func NewServer(port int, ingestor Ingestor, logger *slog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		port:     port,
		logger:   logger.With("component", "api_server"),
		ingestor: ingestor,
		jobs:     make(map[string]*RunJob),
	}
	s.registerRoutes()
	return s
}

// Start starts the API server in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("api server starting", "addr", addr)

	go func() {
		if err := http.ListenAndServe(addr, s.mux); err != nil {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Handler exposes the mux for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Single-product affordances
	s.mux.HandleFunc("POST /api/scraper/preview", s.handlePreview)
	s.mux.HandleFunc("POST /api/scraper/product", s.handleSave)

	// Bulk runs
	s.mux.HandleFunc("POST /api/scraper/runs", s.handleCreateRun)
	s.mux.HandleFunc("GET /api/scraper/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/scraper/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("DELETE /api/scraper/runs/{id}", s.handleCancelRun)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeURLRequest(w, r)
	if !ok {
		return
	}

	product, err := s.ingestor.IngestOne(r.Context(), req.URL)
	if err != nil {
		s.scrapeError(w, "failed to scrape product", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, product)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeURLRequest(w, r)
	if !ok {
		return
	}

	product, err := s.ingestor.SaveOne(r.Context(), req.URL)
	if err != nil {
		s.scrapeError(w, "failed to scrape and save product", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, product)
}

type createRunRequest struct {
	Categories []string `json:"categories"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Categories) == 0 {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"message": "categories are required"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.jobsMu.Lock()
	s.nextID++
	job := &RunJob{
		ID:         fmt.Sprintf("run-%d", s.nextID),
		Status:     "running",
		Categories: req.Categories,
		StartedAt:  time.Now(),
		cancel:     cancel,
	}
	s.jobs[job.ID] = job
	accepted := *job
	s.jobsMu.Unlock()

	go func() {
		run, err := s.ingestor.Run(ctx, req.Categories)

		s.jobsMu.Lock()
		defer s.jobsMu.Unlock()
		job.run = run
		if run != nil {
			job.Counters = run.Snapshot()
		}
		switch {
		case errors.Is(err, types.ErrRunCanceled):
			job.Status = "canceled"
		case err != nil:
			job.Status = "failed"
			job.Error = err.Error()
		default:
			job.Status = "done"
		}
	}()

	s.jsonResponse(w, http.StatusAccepted, &accepted)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.jobsMu.RLock()
	jobs := make([]*RunJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, s.snapshotJob(job))
	}
	s.jobsMu.RUnlock()

	s.jsonResponse(w, http.StatusOK, jobs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	s.jobsMu.RLock()
	job, ok := s.jobs[r.PathValue("id")]
	var snap *RunJob
	if ok {
		snap = s.snapshotJob(job)
	}
	s.jobsMu.RUnlock()

	if !ok {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"message": "run not found"})
		return
	}
	s.jsonResponse(w, http.StatusOK, snap)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	s.jobsMu.RLock()
	job, ok := s.jobs[r.PathValue("id")]
	var id string
	var cancel context.CancelFunc
	if ok {
		id, cancel = job.ID, job.cancel
	}
	s.jobsMu.RUnlock()

	if !ok {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"message": "run not found"})
		return
	}
	cancel()
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"id": id, "status": "canceling"})
}

// snapshotJob copies a job for encoding, refreshing counters from a
// still-running ingestion. The completion goroutine mutates jobs under
// jobsMu, so callers must hold it.
func (s *Server) snapshotJob(job *RunJob) *RunJob {
	snap := *job
	if job.Status == "running" && job.run != nil {
		snap.Counters = job.run.Snapshot()
	}
	return &snap
}

func (s *Server) decodeURLRequest(w http.ResponseWriter, r *http.Request) (urlRequest, bool) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"message": "URL is required"})
		return req, false
	}
	if err := config.ValidateURL(req.URL); err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{
			"message": "invalid URL",
			"error":   err.Error(),
		})
		return req, false
	}
	return req, true
}

// scrapeError maps ingestion failures to a clear error payload.
func (s *Server) scrapeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusBadGateway
	var se *types.StoreError
	if errors.As(err, &se) {
		status = http.StatusInternalServerError
	}
	if errors.Is(err, types.ErrInvalidURL) {
		status = http.StatusBadRequest
	}
	s.logger.Error(msg, "error", err)
	s.jsonResponse(w, status, map[string]string{
		"message": msg,
		"error":   err.Error(),
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encode error", "error", err)
	}
}

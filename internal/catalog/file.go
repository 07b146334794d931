package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

// JSONStore buffers products in memory keyed by source id and writes
// them out as a JSON array on Close. It gives offline and dry runs
// the same upsert semantics as the Mongo backend.
type JSONStore struct {
	path     string
	mu       sync.Mutex
	products map[string]*types.CanonicalProduct
	logger   *slog.Logger
}

// NewJSONStore creates a JSON file store writing to outputPath.
func NewJSONStore(outputPath string, logger *slog.Logger) (*JSONStore, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &JSONStore{
		path:     outputPath,
		products: make(map[string]*types.CanonicalProduct),
		logger:   logger.With("component", "json_store"),
	}, nil
}

func (s *JSONStore) Name() string { return "json" }

func (s *JSONStore) UpsertOne(_ context.Context, product *types.CanonicalProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.SourceID] = product
	return nil
}

// InsertMany inserts new products and skips existing source ids, the
// file-backed analogue of continue-on-duplicate-key.
func (s *JSONStore) InsertMany(_ context.Context, products []*types.CanonicalProduct) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, p := range products {
		if _, exists := s.products[p.SourceID]; exists {
			continue
		}
		s.products[p.SourceID] = p
		inserted++
	}
	s.logger.Debug("batch buffered", "batch", len(products), "inserted", inserted, "total", len(s.products))
	return inserted, nil
}

func (s *JSONStore) HasSourceID(_ context.Context, sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.products[sourceID]
	return ok, nil
}

func (s *JSONStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.products)), nil
}

// Close writes the buffered catalog to disk, sorted by source id for
// stable output.
func (s *JSONStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Err: err, Fatal: true}
	}
	defer f.Close()

	out := make([]*types.CanonicalProduct, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return &types.StoreError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}

	s.logger.Info("catalog written", "path", s.path, "products", len(out))
	return nil
}

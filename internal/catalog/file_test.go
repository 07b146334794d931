package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func product(id, name string) *types.CanonicalProduct {
	return &types.CanonicalProduct{SourceID: id, Name: name, Price: 10}
}

func TestJSONStoreUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	s, err := NewJSONStore(path, testLogger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	if err := s.UpsertOne(ctx, product("1", "first")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertOne(ctx, product("1", "replaced")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("upsert must replace, not duplicate; got %d products", n)
	}
	ok, _ := s.HasSourceID(ctx, "1")
	if !ok {
		t.Error("expected source id present")
	}
}

func TestJSONStoreInsertManySkipsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	s, err := NewJSONStore(path, testLogger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	if err := s.UpsertOne(ctx, product("1", "existing")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	inserted, err := s.InsertMany(ctx, []*types.CanonicalProduct{
		product("1", "dup"),
		product("2", "new"),
		product("3", "new"),
	})
	if err != nil {
		t.Fatalf("insert many: %v", err)
	}
	if inserted != 2 {
		t.Errorf("expected 2 inserted past the duplicate, got %d", inserted)
	}
	if n, _ := s.Count(ctx); n != 3 {
		t.Errorf("expected 3 products, got %d", n)
	}
}

func TestJSONStoreCloseWritesSortedCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "products.json")
	s, err := NewJSONStore(path, testLogger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	s.UpsertOne(ctx, product("20", "b"))
	s.UpsertOne(ctx, product("10", "a"))

	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	var out []types.CanonicalProduct
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 products, got %d", len(out))
	}
	if out[0].SourceID != "10" || out[1].SourceID != "20" {
		t.Errorf("output not sorted by source id: %s, %s", out[0].SourceID, out[1].SourceID)
	}
}

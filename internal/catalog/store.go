package catalog

import (
	"context"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

// Store is the catalog persistence backend. The ingestion pipeline
// treats it as an opaque document store keyed by SourceID.
type Store interface {
	// UpsertOne inserts or replaces the product keyed by SourceID.
	UpsertOne(ctx context.Context, product *types.CanonicalProduct) error

	// InsertMany persists a batch, continuing past per-record
	// uniqueness violations. Returns the number actually inserted.
	InsertMany(ctx context.Context, products []*types.CanonicalProduct) (int, error)

	// HasSourceID reports whether a product with the given source id
	// already exists.
	HasSourceID(ctx context.Context, sourceID string) (bool, error)

	// Count returns the number of products in the catalog.
	Count(ctx context.Context) (int64, error)

	// Close flushes pending writes and releases resources.
	Close(ctx context.Context) error

	// Name returns the backend identifier.
	Name() string
}

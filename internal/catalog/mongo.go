package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trendhaul/catalog-ingest/internal/types"
)

const duplicateKeyCode = 11000

// MongoStore persists canonical products in a MongoDB collection,
// upserting by source_id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to MongoDB and ensures the unique source_id
// index the upsert/dedup contract depends on.
func NewMongoStore(uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb create index: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "mongo_store"),
	}, nil
}

func (s *MongoStore) Name() string { return "mongo" }

// UpsertOne replaces the document keyed by source_id, inserting it if
// absent. Re-ingestion of the same product updates fields in place.
func (s *MongoStore) UpsertOne(ctx context.Context, product *types.CanonicalProduct) error {
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"source_id": product.SourceID},
		product,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Err: err, Fatal: isFatalMongoErr(err)}
	}
	return nil
}

// InsertMany inserts a batch unordered so one duplicate-key violation
// never aborts the rest of the batch.
func (s *MongoStore) InsertMany(ctx context.Context, products []*types.CanonicalProduct) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	docs := make([]any, len(products))
	for i, p := range products {
		docs[i] = p
	}

	res, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err == nil {
		return inserted, nil
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, we := range bwe.WriteErrors {
			if we.Code != duplicateKeyCode {
				return inserted, &types.StoreError{Backend: s.Name(), Err: err}
			}
		}
		// Only duplicate keys, which the batch contract tolerates.
		s.logger.Debug("insert batch had duplicates",
			"batch", len(products), "inserted", inserted, "duplicates", len(bwe.WriteErrors))
		return inserted, nil
	}

	return inserted, &types.StoreError{Backend: s.Name(), Err: err, Fatal: isFatalMongoErr(err)}
}

func (s *MongoStore) HasSourceID(ctx context.Context, sourceID string) (bool, error) {
	err := s.collection.FindOne(ctx, bson.M{"source_id": sourceID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, &types.StoreError{Backend: s.Name(), Err: err, Fatal: isFatalMongoErr(err)}
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, &types.StoreError{Backend: s.Name(), Err: err, Fatal: isFatalMongoErr(err)}
	}
	return n, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	s.logger.Info("mongo store closing")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// isFatalMongoErr classifies connectivity-level failures, the one
// condition allowed to abort a run early.
func isFatalMongoErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

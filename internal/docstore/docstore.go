// Package docstore persists ManagerRecord aggregates in a MongoDB (or
// Cosmos DB Mongo API) collection, one document per manager name.
package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Azure-Samples/tayra/internal/types"
)

// Store wraps the MongoDB client and the transcriptions collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewStore connects, pings, and ensures the unique manager-name index exists.
func NewStore(ctx context.Context, uri, databaseName, collectionName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping document store: %w", err)
	}

	collection := client.Database(databaseName).Collection(collectionName)
	store := &Store{client: client, collection: collection}
	if err := store.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ensureIndexes creates the unique index on manager name. The merge cycle
// relies on it: two concurrent inserts for the same manager must collide
// instead of producing twin documents.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure manager name index: %w", err)
	}
	return nil
}

// FindManager returns the record for the exact manager name, or nil when no
// document exists.
func (s *Store) FindManager(ctx context.Context, name string) (*types.ManagerRecord, error) {
	var record types.ManagerRecord
	err := s.collection.FindOne(ctx, bson.M{"name": name}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find manager %q: %w", name, err)
	}
	return &record, nil
}

// InsertManager creates a brand-new manager document. A duplicate-key error
// means another writer created the document first; callers re-read and merge.
func (s *Store) InsertManager(ctx context.Context, record *types.ManagerRecord) error {
	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert manager %q: %w", record.Name, err)
	}
	return nil
}

// ReplaceManager writes the full document, conditional on the revision the
// caller read. Returns ErrConflict if the stored revision moved on.
func (s *Store) ReplaceManager(ctx context.Context, record *types.ManagerRecord, priorRevision int64) error {
	res, err := s.collection.ReplaceOne(ctx,
		bson.M{"name": record.Name, "revision": priorRevision},
		record,
	)
	if err != nil {
		return fmt.Errorf("replace manager %q: %w", record.Name, err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// Managers returns stored manager records, optionally restricted to one name.
func (s *Store) Managers(ctx context.Context, name string) ([]types.ManagerRecord, error) {
	filter := bson.M{}
	if name != "" {
		filter["name"] = name
	}
	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query managers: %w", err)
	}
	defer cursor.Close(ctx)

	var records []types.ManagerRecord
	for cursor.Next(ctx) {
		var record types.ManagerRecord
		if err := cursor.Decode(&record); err != nil {
			continue // skip documents written by older schema versions
		}
		records = append(records, record)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("managers cursor: %w", err)
	}
	return records, nil
}

// FailedKeys returns the cache keys of every stored transcription that is not
// marked as a valid call. The pipeline uses it to re-run only prior failures.
func (s *Store) FailedKeys(ctx context.Context) (map[string]struct{}, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"assistants.transcriptions.is_valid_call": bson.M{"$ne": types.ValidCallYes}},
	)
	if err != nil {
		return nil, fmt.Errorf("query failed transcriptions: %w", err)
	}
	defer cursor.Close(ctx)

	failed := make(map[string]struct{})
	for cursor.Next(ctx) {
		var record types.ManagerRecord
		if err := cursor.Decode(&record); err != nil {
			continue
		}
		for _, specialist := range record.Assistants {
			for _, leaf := range specialist.Transcriptions {
				if leaf.IsValidCall != types.ValidCallYes {
					failed[types.CacheKey(leaf.Filename)] = struct{}{}
				}
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed transcriptions cursor: %w", err)
	}
	return failed, nil
}

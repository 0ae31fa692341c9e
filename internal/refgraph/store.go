package refgraph

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Collections is what the orchestrator needs from the backing store. Both
// mutating operations are idempotent: rewriting an already-rewritten row or
// deleting an already-deleted row matches zero documents and succeeds.
type Collections interface {
	// RewriteForeignKey updates every row in collection where field equals
	// oldValue to newValue and returns the number of rows changed.
	RewriteForeignKey(ctx context.Context, collection, field, oldValue, newValue string) (int64, error)

	// DeleteByForeignKey deletes every row in collection where field equals
	// value and returns the number of rows removed.
	DeleteByForeignKey(ctx context.Context, collection, field, value string) (int64, error)

	// DistinctForeignKeys returns every distinct value of field present in
	// collection. Used by the consistency sweep.
	DistinctForeignKeys(ctx context.Context, collection, field string) ([]string, error)
}

// MongoCollections implements Collections with per-collection bulk
// UpdateMany/DeleteMany calls.
type MongoCollections struct {
	db *mongo.Database
}

// NewMongoCollections wraps db.
func NewMongoCollections(db *mongo.Database) *MongoCollections {
	return &MongoCollections{db: db}
}

func (m *MongoCollections) RewriteForeignKey(ctx context.Context, collection, field, oldValue, newValue string) (int64, error) {
	res, err := m.db.Collection(collection).UpdateMany(ctx,
		bson.M{field: oldValue},
		bson.M{"$set": bson.M{field: newValue}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite %s.%s: %w", collection, field, err)
	}
	return res.ModifiedCount, nil
}

func (m *MongoCollections) DeleteByForeignKey(ctx context.Context, collection, field, value string) (int64, error) {
	res, err := m.db.Collection(collection).DeleteMany(ctx, bson.M{field: value})
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s by %s: %w", collection, field, err)
	}
	return res.DeletedCount, nil
}

func (m *MongoCollections) DistinctForeignKeys(ctx context.Context, collection, field string) ([]string, error) {
	res := m.db.Collection(collection).Distinct(ctx, field, bson.M{field: bson.M{"$ne": ""}})
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to list distinct %s.%s: %w", collection, field, err)
	}
	var values []string
	if err := res.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode distinct %s.%s: %w", collection, field, err)
	}
	return values, nil
}

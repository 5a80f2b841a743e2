package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicspotter/models"
)

// MongoStore implements Store over three MongoDB collections, one per
// partition, keyed by issue ID. It is the alternative backend for
// deployments that already run MongoDB instead of a shared filesystem.
type MongoStore struct {
	db *mongo.Database
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore wraps an existing database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) collection(partition Partition) *mongo.Collection {
	return s.db.Collection("issues_" + string(partition))
}

// Put upserts the record into the partition's collection.
func (s *MongoStore) Put(ctx context.Context, partition Partition, rec *models.IssueRecord) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection(partition).ReplaceOne(ctx, bson.M{"_id": rec.IssueID}, rec, opts)
	if err != nil {
		return fmt.Errorf("persisting issue %s to %s: %w", rec.IssueID, partition, err)
	}
	rec.Stored = true
	return nil
}

// Get returns the record, or ErrNotFound.
func (s *MongoStore) Get(ctx context.Context, partition Partition, issueID string) (*models.IssueRecord, error) {
	var rec models.IssueRecord
	err := s.collection(partition).FindOne(ctx, bson.M{"_id": issueID}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading issue %s from %s: %w", issueID, partition, err)
	}
	return &rec, nil
}

// ListIDs returns the IDs in the partition in cursor order.
func (s *MongoStore) ListIDs(ctx context.Context, partition Partition) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := s.collection(partition).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing partition %s: %w", partition, err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding id in partition %s: %w", partition, err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("listing partition %s: %w", partition, err)
	}
	return ids, nil
}

// Move inserts into the destination collection before deleting from the
// source, matching the file store's copy-then-delete contract.
func (s *MongoStore) Move(ctx context.Context, issueID string, from, to Partition) error {
	rec, err := s.Get(ctx, from, issueID)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, to, rec); err != nil {
		return fmt.Errorf("moving issue %s to %s: %w", issueID, to, err)
	}
	if _, err := s.collection(from).DeleteOne(ctx, bson.M{"_id": issueID}); err != nil {
		return fmt.Errorf("removing issue %s from %s: %w", issueID, from, err)
	}
	return nil
}

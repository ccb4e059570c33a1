package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commerce-platform/fulfillment/pkg/outbox"
)

const maxRetries = 10

// Repository is the MongoDB implementation of the outbox repository
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates an outbox repository backed by the given database
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		collection: db.Collection("outbox_events"),
	}
}

// EnsureIndexes creates the indexes the polling query depends on
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "eventId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}

// Insert stores events; pass a session context to make it transactional
func (r *Repository) Insert(ctx context.Context, events ...*outbox.Event) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, len(events))
	for i, evt := range events {
		docs[i] = evt
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert outbox events: %w", err)
	}
	return nil
}

// FindUnpublished returns pending events oldest first
func (r *Repository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.Event, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"retryCount":  bson.M{"$lt": maxRetries},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer cursor.Close(ctx)

	var pending []*outbox.Event
	if err := cursor.All(ctx, &pending); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}
	return pending, nil
}

// MarkPublished stamps the event with the publish time
func (r *Repository) MarkPublished(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"eventId": eventID},
		bson.M{"$set": bson.M{"publishedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark event %s published: %w", eventID, err)
	}
	return nil
}

// IncrementRetry bumps the retry counter and records the last error
func (r *Repository) IncrementRetry(ctx context.Context, eventID string, lastError string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"eventId": eventID},
		bson.M{
			"$inc": bson.M{"retryCount": 1},
			"$set": bson.M{"lastError": lastError},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to record retry for event %s: %w", eventID, err)
	}
	return nil
}

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commerce-platform/fulfillment/internal/reconciliation/domain"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
)

// PaymentRecordRepository is the MongoDB implementation of
// domain.PaymentRecordRepository
type PaymentRecordRepository struct {
	collection *mongo.Collection
}

// NewPaymentRecordRepository creates a payment record repository
func NewPaymentRecordRepository(client *pkgmongo.Client) *PaymentRecordRepository {
	return &PaymentRecordRepository{
		collection: client.Database().Collection("payment_records"),
	}
}

// EnsureIndexes creates the indexes the repository depends on. The
// unique paymentRef index is the ledger's duplicate guard.
func (r *PaymentRecordRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "paymentRef", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "collectedAt", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create payment record indexes: %w", err)
	}
	return nil
}

// Insert writes a ledger entry. A duplicate paymentRef means the
// collection was already recorded.
func (r *PaymentRecordRepository) Insert(ctx context.Context, record *domain.PaymentRecord) error {
	_, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrRecordExists
		}
		return fmt.Errorf("failed to insert payment record %s: %w", record.PaymentRef, err)
	}
	return nil
}

// GetByDeliveryID fetches the ledger entry for a delivery
func (r *PaymentRecordRepository) GetByDeliveryID(ctx context.Context, deliveryID string) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := r.collection.FindOne(ctx, bson.M{"deliveryId": deliveryID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to fetch payment record: %w", err)
	}
	return &record, nil
}

// ListByAgent returns an agent's ledger entries for one UTC day
func (r *PaymentRecordRepository) ListByAgent(ctx context.Context, agentID string, date time.Time) ([]*domain.PaymentRecord, error) {
	dayStart := date.UTC().Truncate(24 * time.Hour)
	filter := bson.M{
		"agentId": agentID,
		"collectedAt": bson.M{
			"$gte": dayStart,
			"$lt":  dayStart.Add(24 * time.Hour),
		},
	}

	cursor, err := r.collection.Find(ctx, filter,
		options.Find().SetSort(pkgmongo.SortDescending("collectedAt")))
	if err != nil {
		return nil, fmt.Errorf("failed to list payment records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*domain.PaymentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode payment records: %w", err)
	}

	return records, nil
}

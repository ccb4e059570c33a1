package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commerce-platform/fulfillment/internal/inventory/domain"
)

// StockDebitRepository is the MongoDB implementation of the debit ledger
type StockDebitRepository struct {
	collection *mongo.Collection
}

// NewStockDebitRepository creates a stock debit repository
func NewStockDebitRepository(db *mongo.Database) *StockDebitRepository {
	return &StockDebitRepository{
		collection: db.Collection("stock_debits"),
	}
}

// EnsureIndexes creates the unique orderId index the ledger relies on
func (r *StockDebitRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "orderId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create stock debit index: %w", err)
	}
	return nil
}

// Insert stores a debit record; a duplicate orderId is ErrAlreadyDebited
func (r *StockDebitRepository) Insert(ctx context.Context, debit *domain.StockDebit) error {
	if _, err := r.collection.InsertOne(ctx, debit); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyDebited
		}
		return fmt.Errorf("failed to insert stock debit for order %s: %w", debit.OrderID, err)
	}
	return nil
}

// MarkReversed conditionally flips debited -> reversed and returns the
// flipped record so the caller knows which quantities to restore
func (r *StockDebitRepository) MarkReversed(ctx context.Context, orderID string) (*domain.StockDebit, error) {
	now := time.Now().UTC()

	var debit domain.StockDebit
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{
			"orderId": orderID,
			"status":  domain.DebitStatusDebited,
		},
		bson.M{"$set": bson.M{
			"status":     domain.DebitStatusReversed,
			"reversedAt": now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&debit)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrDebitNotFound
		}
		return nil, fmt.Errorf("failed to reverse stock debit for order %s: %w", orderID, err)
	}

	return &debit, nil
}

// GetByOrderID fetches a debit record by order ID
func (r *StockDebitRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.StockDebit, error) {
	var debit domain.StockDebit
	err := r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&debit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrDebitNotFound
		}
		return nil, fmt.Errorf("failed to fetch stock debit for order %s: %w", orderID, err)
	}
	return &debit, nil
}

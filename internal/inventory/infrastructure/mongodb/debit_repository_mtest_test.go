package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/commerce-platform/fulfillment/internal/inventory/domain"
)

func TestStockDebitRepository_Insert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	debit := func(t *testing.T) *domain.StockDebit {
		t.Helper()
		d, err := domain.NewStockDebit("ORD-001", "STORE-001", []domain.DebitItem{
			{ProductID: "PROD-001", Quantity: 2},
		})
		require.NoError(t, err)
		return d
	}

	mt.Run("first insert", func(mt *mtest.T) {
		repo := NewStockDebitRepository(mt.DB)

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.Insert(context.Background(), debit(mt.T)))
	})

	mt.Run("replayed insert hits the unique index", func(mt *mtest.T) {
		repo := NewStockDebitRepository(mt.DB)

		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))
		err := repo.Insert(context.Background(), debit(mt.T))
		assert.ErrorIs(t, err, domain.ErrAlreadyDebited)
	})
}

func TestStockDebitRepository_MarkReversed(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("flips a debited record", func(mt *mtest.T) {
		repo := NewStockDebitRepository(mt.DB)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "orderId", Value: "ORD-001"},
			{Key: "storeId", Value: "STORE-001"},
			{Key: "status", Value: string(domain.DebitStatusDebited)},
			{Key: "items", Value: bson.A{bson.D{
				{Key: "productId", Value: "PROD-001"},
				{Key: "quantity", Value: 2},
			}}},
		}}))

		debit, err := repo.MarkReversed(context.Background(), "ORD-001")
		require.NoError(t, err)
		assert.Equal(t, "ORD-001", debit.OrderID)
		require.Len(t, debit.Items, 1)
		assert.Equal(t, 2, debit.Items[0].Quantity)
	})

	mt.Run("no debited record means nothing to reverse", func(mt *mtest.T) {
		repo := NewStockDebitRepository(mt.DB)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := repo.MarkReversed(context.Background(), "ORD-404")
		assert.ErrorIs(t, err, domain.ErrDebitNotFound)
	})
}

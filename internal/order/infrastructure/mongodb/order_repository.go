package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commerce-platform/fulfillment/internal/order/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
	"github.com/commerce-platform/fulfillment/pkg/kafka"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
)

// OrderRepository is the MongoDB implementation of domain.OrderRepository.
// Aggregate writes and their domain events commit in one session
// transaction; the events land in the outbox collection and a polling
// publisher drains them to Kafka.
type OrderRepository struct {
	client     *pkgmongo.Client
	collection *mongo.Collection
	outbox     outbox.Repository
	factory    *events.Factory
}

// NewOrderRepository creates an order repository
func NewOrderRepository(client *pkgmongo.Client, outboxRepo outbox.Repository) *OrderRepository {
	return &OrderRepository{
		client:     client,
		collection: client.Database().Collection("orders"),
		outbox:     outboxRepo,
		factory:    events.NewFactory(events.SourceOrders),
	}
}

// EnsureIndexes creates the indexes the repository depends on
func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "storeId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

// Save inserts a new order and its events transactionally
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.InsertOne(sessCtx, order); err != nil {
			return fmt.Errorf("failed to insert order %s: %w", order.OrderID, err)
		}
		return r.insertEvents(sessCtx, order)
	})
	if err != nil {
		return err
	}

	order.ClearDomainEvents()
	return nil
}

// Update replaces the order document and inserts its events transactionally
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		result, err := r.collection.ReplaceOne(sessCtx,
			bson.M{"orderId": order.OrderID}, order)
		if err != nil {
			return fmt.Errorf("failed to update order %s: %w", order.OrderID, err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrOrderNotFound
		}
		return r.insertEvents(sessCtx, order)
	})
	if err != nil {
		return err
	}

	order.ClearDomainEvents()
	return nil
}

// GetByOrderID fetches an order by its business identifier
func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	return &order, nil
}

// ListByStore returns orders for a store, newest first
func (r *OrderRepository) ListByStore(ctx context.Context, storeID string, opts domain.ListOptions) ([]*domain.Order, error) {
	filter := bson.M{"storeId": storeID}
	if opts.Status != "" {
		filter["status"] = opts.Status
	}

	page := pkgmongo.Pagination{Page: opts.Page, PageSize: opts.PageSize}
	if page.Page < 1 {
		page = pkgmongo.DefaultPagination()
	}

	findOpts := options.Find().
		SetSort(pkgmongo.SortDescending("createdAt")).
		SetSkip(page.Skip()).
		SetLimit(page.Limit())

	cursor, err := r.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	return orders, nil
}

func (r *OrderRepository) insertEvents(sessCtx mongo.SessionContext, order *domain.Order) error {
	domainEvents := order.DomainEvents()
	if len(domainEvents) == 0 {
		return nil
	}

	records := make([]*outbox.Event, 0, len(domainEvents))
	for _, evt := range domainEvents {
		env, err := r.factory.WrapWithCorrelation(order.OrderID, evt, "", order.StoreID, order.OrderID)
		if err != nil {
			return err
		}
		records = append(records, outbox.FromEnvelope(env, kafka.Topics.OrderEvents))
	}

	return r.outbox.Insert(sessCtx, records...)
}

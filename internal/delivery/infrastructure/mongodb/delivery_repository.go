package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commerce-platform/fulfillment/internal/delivery/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
	"github.com/commerce-platform/fulfillment/pkg/kafka"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
)

// DeliveryRepository is the MongoDB implementation of domain.DeliveryRepository
type DeliveryRepository struct {
	client     *pkgmongo.Client
	collection *mongo.Collection
	outbox     outbox.Repository
	factory    *events.Factory
}

// NewDeliveryRepository creates a delivery repository
func NewDeliveryRepository(client *pkgmongo.Client, outboxRepo outbox.Repository) *DeliveryRepository {
	return &DeliveryRepository{
		client:     client,
		collection: client.Database().Collection("deliveries"),
		outbox:     outboxRepo,
		factory:    events.NewFactory(events.SourceDelivery),
	}
}

// EnsureIndexes creates the indexes the repository depends on
func (r *DeliveryRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "deliveryId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create delivery indexes: %w", err)
	}
	return nil
}

// Save inserts a new delivery and its events transactionally
func (r *DeliveryRepository) Save(ctx context.Context, delivery *domain.Delivery) error {
	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.InsertOne(sessCtx, delivery); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrDeliveryExists
			}
			return fmt.Errorf("failed to insert delivery %s: %w", delivery.DeliveryID, err)
		}
		return r.insertEvents(sessCtx, delivery)
	})
	if err != nil {
		return err
	}

	delivery.ClearDomainEvents()
	return nil
}

// Update replaces the delivery document and inserts its events transactionally
func (r *DeliveryRepository) Update(ctx context.Context, delivery *domain.Delivery) error {
	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		result, err := r.collection.ReplaceOne(sessCtx,
			bson.M{"deliveryId": delivery.DeliveryID}, delivery)
		if err != nil {
			return fmt.Errorf("failed to update delivery %s: %w", delivery.DeliveryID, err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrDeliveryNotFound
		}
		return r.insertEvents(sessCtx, delivery)
	})
	if err != nil {
		return err
	}

	delivery.ClearDomainEvents()
	return nil
}

// GetByDeliveryID fetches a delivery by its business identifier
func (r *DeliveryRepository) GetByDeliveryID(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	return r.findOne(ctx, bson.M{"deliveryId": deliveryID})
}

// GetByOrderID fetches the delivery for an order
func (r *DeliveryRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID})
}

// ListByAgent returns deliveries for an agent, newest first
func (r *DeliveryRepository) ListByAgent(ctx context.Context, agentID string, opts domain.ListOptions) ([]*domain.Delivery, error) {
	filter := bson.M{"agentId": agentID}
	if opts.Status != "" {
		filter["status"] = opts.Status
	}
	if opts.Date != nil {
		dayStart := opts.Date.UTC().Truncate(24 * time.Hour)
		filter["createdAt"] = bson.M{
			"$gte": dayStart,
			"$lt":  dayStart.Add(24 * time.Hour),
		}
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
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer cursor.Close(ctx)

	var deliveries []*domain.Delivery
	if err := cursor.All(ctx, &deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries: %w", err)
	}

	return deliveries, nil
}

// AppendLocation pushes a tracking ping onto the delivery
func (r *DeliveryRepository) AppendLocation(ctx context.Context, deliveryID string, ping domain.LocationPing) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"deliveryId": deliveryID},
		pkgmongo.BuildPushUpdate("locations", ping),
	)
	if err != nil {
		return fmt.Errorf("failed to append location for %s: %w", deliveryID, err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

// CollectCash flips codCollected in one conditional update. The filter
// carries the idempotency guard: only an uncollected COD delivery
// matches.
func (r *DeliveryRepository) CollectCash(ctx context.Context, deliveryID string, collectedAt time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"deliveryId":   deliveryID,
			"isCod":        true,
			"codCollected": false,
		},
		pkgmongo.BuildUpdateWithTimestamp(bson.M{
			"codCollected": true,
			"collectedAt":  collectedAt,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to mark cash collected for %s: %w", deliveryID, err)
	}

	if result.MatchedCount == 0 {
		// Work out which guard failed.
		delivery, err := r.GetByDeliveryID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if !delivery.IsCOD {
			return domain.ErrNotCOD
		}
		return domain.ErrAlreadyCollected
	}

	return nil
}

func (r *DeliveryRepository) findOne(ctx context.Context, filter bson.M) (*domain.Delivery, error) {
	var delivery domain.Delivery
	err := r.collection.FindOne(ctx, filter).Decode(&delivery)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to fetch delivery: %w", err)
	}
	return &delivery, nil
}

func (r *DeliveryRepository) insertEvents(sessCtx mongo.SessionContext, delivery *domain.Delivery) error {
	domainEvents := delivery.DomainEvents()
	if len(domainEvents) == 0 {
		return nil
	}

	records := make([]*outbox.Event, 0, len(domainEvents))
	for _, evt := range domainEvents {
		env, err := r.factory.WrapWithCorrelation(delivery.DeliveryID, evt, "", delivery.StoreID, delivery.OrderID)
		if err != nil {
			return err
		}
		records = append(records, outbox.FromEnvelope(env, kafka.Topics.DeliveryEvents))
	}

	return r.outbox.Insert(sessCtx, records...)
}

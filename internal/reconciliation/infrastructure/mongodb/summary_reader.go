package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	delivery "github.com/commerce-platform/fulfillment/internal/delivery/domain"
	"github.com/commerce-platform/fulfillment/internal/reconciliation/domain"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
)

// SummaryReader aggregates the agent cash position from the delivery
// and payment record collections. It is read-only.
type SummaryReader struct {
	deliveries *mongo.Collection
	records    *mongo.Collection
}

// NewSummaryReader creates a summary reader
func NewSummaryReader(client *pkgmongo.Client) *SummaryReader {
	return &SummaryReader{
		deliveries: client.Database().Collection("deliveries"),
		records:    client.Database().Collection("payment_records"),
	}
}

type collectedGroup struct {
	Count     int   `bson:"count"`
	Expected  int64 `bson:"expected"`
	Collected int64 `bson:"collected"`
	Variance  int64 `bson:"variance"`
}

type codGroup struct {
	Count int   `bson:"count"`
	Total int64 `bson:"total"`
}

// Summarize builds the cash summary for an agent on one UTC day
func (r *SummaryReader) Summarize(ctx context.Context, agentID string, date time.Time) (*domain.CashSummary, error) {
	dayStart := date.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	summary := &domain.CashSummary{
		AgentID: agentID,
		Date:    dayStart,
	}

	collected, err := r.aggregateCollected(ctx, agentID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	summary.CollectionCount = collected.Count
	summary.ExpectedTotal = collected.Expected
	summary.CollectedTotal = collected.Collected
	summary.VarianceTotal = collected.Variance

	pending, err := r.aggregateCOD(ctx, agentID, dayStart, dayEnd, pendingStatusCond())
	if err != nil {
		return nil, err
	}
	summary.PendingCount = pending.Count
	summary.PendingTotal = pending.Total

	upcoming, err := r.aggregateCOD(ctx, agentID, dayStart, dayEnd, upcomingStatusCond())
	if err != nil {
		return nil, err
	}
	summary.UpcomingCount = upcoming.Count
	summary.UpcomingTotal = upcoming.Total

	return summary, nil
}

func (r *SummaryReader) aggregateCollected(ctx context.Context, agentID string, dayStart, dayEnd time.Time) (*collectedGroup, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"agentId":     agentID,
			"collectedAt": bson.M{"$gte": dayStart, "$lt": dayEnd},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":       nil,
			"count":     bson.M{"$sum": 1},
			"expected":  bson.M{"$sum": "$expectedAmount.amount"},
			"collected": bson.M{"$sum": "$collectedAmount.amount"},
			"variance":  bson.M{"$sum": "$variance"},
		}}},
	}

	cursor, err := r.records.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate collections: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []collectedGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode collection aggregate: %w", err)
	}
	if len(groups) == 0 {
		return &collectedGroup{}, nil
	}
	return &groups[0], nil
}

// pendingStatusCond matches deliveries handed over but not yet settled
func pendingStatusCond() bson.M {
	return bson.M{"$eq": []interface{}{"$status", delivery.StatusDelivered}}
}

// upcomingStatusCond matches deliveries still in flight. FAILED
// deliveries carry no expected cash and are excluded.
func upcomingStatusCond() bson.M {
	return bson.M{"$in": []interface{}{"$status", bson.A{
		delivery.StatusPending,
		delivery.StatusPickedUp,
		delivery.StatusInTransit,
	}}}
}

// aggregateCOD sums uncollected COD deliveries for the agent's day,
// split by the statusCond expression into pending and upcoming.
func (r *SummaryReader) aggregateCOD(ctx context.Context, agentID string, dayStart, dayEnd time.Time, statusCond bson.M) (*codGroup, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"agentId":      agentID,
			"isCod":        true,
			"codCollected": false,
			"createdAt":    bson.M{"$gte": dayStart, "$lt": dayEnd},
		}}},
		{{Key: "$match", Value: bson.M{"$expr": statusCond}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"count": bson.M{"$sum": 1},
			"total": bson.M{"$sum": "$totalAmount.amount"},
		}}},
	}

	cursor, err := r.deliveries.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate COD deliveries: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []codGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode COD aggregate: %w", err)
	}
	if len(groups) == 0 {
		return &codGroup{}, nil
	}
	return &groups[0], nil
}

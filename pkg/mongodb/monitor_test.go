package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"

	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

func metricsForTest() *metrics.Metrics {
	return metrics.New(metrics.DefaultConfig("test"))
}

func rawCommand(t *testing.T, doc bson.D) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func TestCommandMonitor(t *testing.T) {
	ctx := context.Background()

	t.Run("records a succeeded command against its collection", func(t *testing.T) {
		m := metricsForTest()
		monitor := newCommandMonitor(m)

		monitor.Started(ctx, &event.CommandStartedEvent{
			Command:     rawCommand(t, bson.D{{Key: "find", Value: "products"}}),
			CommandName: "find",
			RequestID:   7,
		})
		monitor.Succeeded(ctx, &event.CommandSucceededEvent{
			CommandFinishedEvent: event.CommandFinishedEvent{
				CommandName:   "find",
				RequestID:     7,
				DurationNanos: int64(3 * time.Millisecond),
			},
		})

		assert.Equal(t, float64(1), testutil.ToFloat64(
			m.MongoDBOperations.WithLabelValues("test", "products", "find", "success")))
	})

	t.Run("records a failed command", func(t *testing.T) {
		m := metricsForTest()
		monitor := newCommandMonitor(m)

		monitor.Started(ctx, &event.CommandStartedEvent{
			Command:     rawCommand(t, bson.D{{Key: "update", Value: "orders"}}),
			CommandName: "update",
			RequestID:   8,
		})
		monitor.Failed(ctx, &event.CommandFailedEvent{
			CommandFinishedEvent: event.CommandFinishedEvent{
				CommandName:   "update",
				RequestID:     8,
				DurationNanos: int64(time.Millisecond),
			},
		})

		assert.Equal(t, float64(1), testutil.ToFloat64(
			m.MongoDBOperations.WithLabelValues("test", "orders", "update", "error")))
	})

	t.Run("skips commands without a collection target", func(t *testing.T) {
		m := metricsForTest()
		monitor := newCommandMonitor(m)

		monitor.Started(ctx, &event.CommandStartedEvent{
			Command:     rawCommand(t, bson.D{{Key: "ping", Value: int32(1)}}),
			CommandName: "ping",
			RequestID:   9,
		})
		monitor.Succeeded(ctx, &event.CommandSucceededEvent{
			CommandFinishedEvent: event.CommandFinishedEvent{
				CommandName: "ping",
				RequestID:   9,
			},
		})

		assert.Zero(t, testutil.CollectAndCount(m.MongoDBOperations))
	})

	t.Run("ignores a finish without a tracked start", func(t *testing.T) {
		m := metricsForTest()
		monitor := newCommandMonitor(m)

		monitor.Succeeded(ctx, &event.CommandSucceededEvent{
			CommandFinishedEvent: event.CommandFinishedEvent{
				CommandName: "find",
				RequestID:   10,
			},
		})

		assert.Zero(t, testutil.CollectAndCount(m.MongoDBOperations))
	})
}

package mongodb

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"

	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

// newCommandMonitor feeds driver command events into the operation
// metrics. The started event carries the target collection as the first
// command value; finished events only carry the request ID, so the
// collection is tracked per in-flight request. Commands whose first
// value is not a collection name (ping, endSessions) are skipped.
func newCommandMonitor(m *metrics.Metrics) *event.CommandMonitor {
	var inflight sync.Map // request ID -> collection name

	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			elem, err := e.Command.IndexErr(0)
			if err != nil {
				return
			}
			collection, ok := elem.Value().StringValueOK()
			if !ok {
				return
			}
			inflight.Store(e.RequestID, collection)
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			collection, ok := inflight.LoadAndDelete(e.RequestID)
			if !ok {
				return
			}
			m.RecordMongoDBOperation(collection.(string), e.CommandName, true, time.Duration(e.DurationNanos))
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			collection, ok := inflight.LoadAndDelete(e.RequestID)
			if !ok {
				return
			}
			m.RecordMongoDBOperation(collection.(string), e.CommandName, false, time.Duration(e.DurationNanos))
		},
	}
}

package outbox

import (
	"context"
)

// Repository persists and drains outbox events
type Repository interface {
	// Insert stores events within the caller's transaction context. Callers
	// pass the session context so the insert commits or aborts with the
	// aggregate write.
	Insert(ctx context.Context, events ...*Event) error

	// FindUnpublished returns up to limit events that have not been published
	// and have not exhausted their retries.
	FindUnpublished(ctx context.Context, limit int) ([]*Event, error)

	// MarkPublished records a successful publish.
	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry records a failed publish attempt.
	IncrementRetry(ctx context.Context, eventID string, lastError string) error
}

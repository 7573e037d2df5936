package drafts

import (
	"context"
	"time"
)

// Store is the durable draft store. Implementations must treat Upsert and
// Delete as idempotent; deleting a missing key is not an error.
type Store interface {
	// Get returns (nil, nil) when no draft exists for key.
	Get(ctx context.Context, key Key) (*Record, error)
	Upsert(ctx context.Context, key Key, payload Payload, updatedAt time.Time) error
	Delete(ctx context.Context, key Key) error
}

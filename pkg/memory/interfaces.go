package memory

import "context"

// Store is the opaque per-user document store backing both memory tiers.
// One document exists per (userID, kind); writes are upserts with
// last-write-wins semantics and no version check.
type Store interface {
	Close() error
	Upsert(ctx context.Context, userID string, kind Kind, payload []byte) error
	Get(ctx context.Context, userID string, kind Kind) ([]byte, bool, error)
	Delete(ctx context.Context, userID string, kind Kind) (bool, error)
	ListUsers(ctx context.Context) ([]string, error)
}

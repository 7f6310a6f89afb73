package location

import "context"

// Store holds the latest record per user.
//
// Error contract:
// - Find returns sentinel.ErrNotFound (wrapped) when the user has never
//   reported a location.
// - Upsert is last-write-wins by arrival order and must be linearizable per
//   user; different users' records are independent.
type Store interface {
	Upsert(ctx context.Context, record *Record) error
	Find(ctx context.Context, userID string) (*Record, error)
}

package audit

import "context"

// Store persists audit events.
//
// Error contract: Append returns nil on success and a wrapped infrastructure
// error on failure; List methods return empty slices, never sentinel
// not-found, since an empty trail is a valid state.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID string) ([]Event, error)
	ListByCall(ctx context.Context, callID string) ([]Event, error)
}

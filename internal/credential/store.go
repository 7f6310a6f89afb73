package credential

import "context"

// Store persists the single admin credential so a monitoring session can be
// re-created across process restarts.
//
// Error contract: Load returns sentinel.ErrNotFound (wrapped) when no
// credential has ever been saved.
type Store interface {
	Save(ctx context.Context, cred *Credential) error
	Load(ctx context.Context) (*Credential, error)
}

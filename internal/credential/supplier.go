package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	dErrors "callfence/pkg/domain-errors"
	"callfence/pkg/platform/sentinel"
)

// refreshKey is the singleflight key; there is exactly one admin credential
// per deployment.
const refreshKey = "admin"

// Supplier hands out a currently-valid access token, refreshing through the
// token endpoint when needed. Refresh is a critical section: concurrent
// callers wait on one in-flight refresh instead of duplicating it.
type Supplier struct {
	store     Store
	refresher Refresher
	logger    *slog.Logger
	group     singleflight.Group
	skew      time.Duration
	clock     func() time.Time
}

// Option configures a Supplier.
type Option func(*Supplier)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Supplier) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithExpirySkew sets how much headroom an access token needs before it is
// treated as expired.
func WithExpirySkew(skew time.Duration) Option {
	return func(s *Supplier) {
		s.skew = skew
	}
}

// NewSupplier constructs a credential supplier.
func NewSupplier(store Store, refresher Refresher, logger *slog.Logger, opts ...Option) *Supplier {
	s := &Supplier{
		store:     store,
		refresher: refresher,
		logger:    logger,
		skew:      30 * time.Second,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Seed saves an externally acquired credential (admin login flow) so the
// supplier can serve and refresh it from now on.
func (s *Supplier) Seed(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.AccessToken == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "credential must carry an access token")
	}
	return s.store.Save(ctx, cred)
}

// Token returns a currently-valid access token, refreshing first if the
// stored one has expired.
func (s *Supplier) Token(ctx context.Context) (string, error) {
	cred, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if cred.AccessUsable(s.clock(), s.skew) {
		return cred.AccessToken, nil
	}
	return s.Refresh(ctx)
}

// Refresh forces a refresh and returns the new access token. Exactly one
// refresh runs at a time; concurrent callers share its result.
func (s *Supplier) Refresh(ctx context.Context) (string, error) {
	token, err, _ := s.group.Do(refreshKey, func() (any, error) {
		return s.refreshLocked(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *Supplier) refreshLocked(ctx context.Context) (string, error) {
	cred, err := s.load(ctx)
	if err != nil {
		return "", err
	}

	now := s.clock()
	// Another caller may have refreshed while we waited on the flight group.
	if cred.AccessUsable(now, s.skew) {
		return cred.AccessToken, nil
	}
	if !cred.RefreshUsable(now) {
		return "", dErrors.New(dErrors.CodeCredentialExpired, "refresh token expired, re-authentication required")
	}

	fresh, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", err
	}
	if fresh.RefreshExpiresAt.IsZero() {
		fresh.RefreshExpiresAt = cred.RefreshExpiresAt
	}
	if err := s.store.Save(ctx, fresh); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist refreshed credential")
	}

	s.logger.InfoContext(ctx, "admin credential refreshed",
		"access_expires_at", fresh.AccessExpiresAt,
	)
	return fresh.AccessToken, nil
}

func (s *Supplier) load(ctx context.Context) (*Credential, error) {
	cred, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeCredentialExpired, "no admin credential on file")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin credential")
	}
	return cred, nil
}

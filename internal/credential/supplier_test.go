package credential

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "callfence/pkg/domain-errors"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls atomic.Int64
	cred  *Credential
	err   error
	delay time.Duration
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*Credential, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.cred
	return &copied, nil
}

func newTestSupplier(t *testing.T, refresher Refresher, now time.Time) (*Supplier, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	supplier := NewSupplier(store, refresher, logger, WithClock(func() time.Time { return now }))
	return supplier, store
}

func TestSupplier_Token(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid access token served without refresh", func(t *testing.T) {
		refresher := &fakeRefresher{}
		supplier, store := newTestSupplier(t, refresher, now)
		require.NoError(t, store.Save(context.Background(), &Credential{
			AccessToken:      "live-token",
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshToken:     "refresh",
			RefreshExpiresAt: now.Add(24 * time.Hour),
		}))

		token, err := supplier.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "live-token", token)
		assert.Zero(t, refresher.calls.Load())
	})

	t.Run("expired access token triggers refresh", func(t *testing.T) {
		refresher := &fakeRefresher{cred: &Credential{
			AccessToken:      "minted-token",
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshToken:     "refresh-2",
			RefreshExpiresAt: now.Add(24 * time.Hour),
		}}
		supplier, store := newTestSupplier(t, refresher, now)
		require.NoError(t, store.Save(context.Background(), &Credential{
			AccessToken:      "dead-token",
			AccessExpiresAt:  now.Add(-time.Minute),
			RefreshToken:     "refresh",
			RefreshExpiresAt: now.Add(24 * time.Hour),
		}))

		token, err := supplier.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "minted-token", token)
		assert.Equal(t, int64(1), refresher.calls.Load())

		// The refreshed credential must be persisted.
		saved, err := store.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "minted-token", saved.AccessToken)
	})

	t.Run("token within skew window is refreshed early", func(t *testing.T) {
		refresher := &fakeRefresher{cred: &Credential{
			AccessToken:      "minted-token",
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshExpiresAt: now.Add(24 * time.Hour),
		}}
		supplier, store := newTestSupplier(t, refresher, now)
		require.NoError(t, store.Save(context.Background(), &Credential{
			AccessToken:      "expiring-token",
			AccessExpiresAt:  now.Add(10 * time.Second), // inside the 30s skew
			RefreshToken:     "refresh",
			RefreshExpiresAt: now.Add(24 * time.Hour),
		}))

		token, err := supplier.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "minted-token", token)
	})

	t.Run("no credential on file is credential_expired", func(t *testing.T) {
		supplier, _ := newTestSupplier(t, &fakeRefresher{}, now)

		_, err := supplier.Token(context.Background())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCredentialExpired))
	})

	t.Run("expired refresh token requires re-authentication", func(t *testing.T) {
		refresher := &fakeRefresher{}
		supplier, store := newTestSupplier(t, refresher, now)
		require.NoError(t, store.Save(context.Background(), &Credential{
			AccessToken:      "dead-token",
			AccessExpiresAt:  now.Add(-time.Minute),
			RefreshToken:     "refresh",
			RefreshExpiresAt: now.Add(-time.Minute),
		}))

		_, err := supplier.Token(context.Background())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCredentialExpired))
		assert.Zero(t, refresher.calls.Load(), "no refresh attempt with a dead refresh token")
	})
}

func TestSupplier_ConcurrentRefreshSingleFlight(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher := &fakeRefresher{
		delay: 20 * time.Millisecond,
		cred: &Credential{
			AccessToken:      "minted-token",
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshToken:     "refresh-2",
			RefreshExpiresAt: now.Add(24 * time.Hour),
		},
	}
	supplier, store := newTestSupplier(t, refresher, now)
	require.NoError(t, store.Save(context.Background(), &Credential{
		AccessToken:      "dead-token",
		AccessExpiresAt:  now.Add(-time.Minute),
		RefreshToken:     "refresh",
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}))

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	errs := make([]error, 8)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = supplier.Token(context.Background())
		}()
	}
	wg.Wait()

	for i, token := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "minted-token", token)
	}
	assert.Equal(t, int64(1), refresher.calls.Load(), "concurrent callers share one refresh")
}

func TestSupplier_RefreshKeepsRefreshExpiryWhenNotRotated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refreshExpiry := now.Add(14 * 24 * time.Hour)
	refresher := &fakeRefresher{cred: &Credential{
		AccessToken:     "minted-token",
		AccessExpiresAt: now.Add(time.Hour),
		RefreshToken:    "refresh",
		// Token endpoint did not report a refresh expiry.
	}}
	supplier, store := newTestSupplier(t, refresher, now)
	require.NoError(t, store.Save(context.Background(), &Credential{
		AccessToken:      "dead-token",
		AccessExpiresAt:  now.Add(-time.Minute),
		RefreshToken:     "refresh",
		RefreshExpiresAt: refreshExpiry,
	}))

	_, err := supplier.Refresh(context.Background())
	require.NoError(t, err)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refreshExpiry, saved.RefreshExpiresAt)
}

func TestSupplier_Seed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	supplier, store := newTestSupplier(t, &fakeRefresher{}, now)

	err := supplier.Seed(context.Background(), &Credential{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	require.NoError(t, supplier.Seed(context.Background(), &Credential{
		AccessToken:     "seeded",
		AccessExpiresAt: now.Add(time.Hour),
	}))
	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seeded", saved.AccessToken)
}

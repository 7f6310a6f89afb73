package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfence/internal/geofence"
	"callfence/pkg/platform/sentinel"
)

func TestInMemoryStore_FindMissing(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Find(context.Background(), "nobody")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_UpsertOverwrites(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &Record{
		UserID:     "user-1",
		Email:      "user-1@example.com",
		Latitude:   15,
		Longitude:  105,
		Verdict:    geofence.VerdictAllowed,
		RecordedAt: base,
	}
	require.NoError(t, store.Upsert(ctx, first))

	second := &Record{
		UserID:     "user-1",
		Latitude:   25,
		Longitude:  105,
		Verdict:    geofence.VerdictBlocked,
		RecordedAt: base.Add(30 * time.Second),
	}
	require.NoError(t, store.Upsert(ctx, second))

	got, err := store.Find(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, geofence.VerdictBlocked, got.Verdict)
	assert.Equal(t, 25.0, got.Latitude)

	// First-seen and email survive overwrites.
	assert.Equal(t, base, got.FirstSeen)
	assert.Equal(t, "user-1@example.com", got.Email)
}

func TestInMemoryStore_ConcurrentUsers(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	users := []string{"a", "b", "c", "d"}
	for _, userID := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = store.Upsert(ctx, &Record{
					UserID:     userID,
					Latitude:   float64(i),
					Verdict:    geofence.VerdictAllowed,
					RecordedAt: time.Now(),
				})
				_, _ = store.Find(ctx, userID)
			}
		}()
	}
	wg.Wait()

	for _, userID := range users {
		got, err := store.Find(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, got.UserID)
	}
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "daily_scan:user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := &Record{Count: 2, Date: "2025-06-15", Level: "free"}
	require.NoError(t, s.Set(ctx, "daily_scan:user-1", rec, time.Time{}))

	got, err := s.Get(ctx, "daily_scan:user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "2025-06-15", got.Date)

	// Returned record is a copy; mutating it doesn't touch the store.
	got.Count = 99
	again, err := s.Get(ctx, "daily_scan:user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Count)

	require.NoError(t, s.Delete(ctx, "daily_scan:user-1"))
	_, err = s.Get(ctx, "daily_scan:user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, "daily_scan:user-1"))
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()

	midnight := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, "guest_scan:ip_1.2.3.4", &Record{Count: 3}, midnight))

	_, err := s.Get(ctx, "guest_scan:ip_1.2.3.4")
	assert.NoError(t, err)

	now = midnight.Add(time.Second)
	_, err = s.Get(ctx, "guest_scan:ip_1.2.3.4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiryUsesInjectedClock(t *testing.T) {
	// A record expiring at a point that is in the past of the wall clock
	// must still be readable while the injected clock sits before it.
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()

	midnight := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, "daily_scan:user-1", &Record{Count: 1}, midnight))

	got, err := s.Get(ctx, "daily_scan:user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
}

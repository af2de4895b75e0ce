package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksnap/oksnap/models"
	"github.com/oksnap/oksnap/storage"
)

func testLedger(t *testing.T) (*QuotaLedger, *storage.MemoryStore, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := storage.NewMemoryStore()
	store.SetClock(clock)
	ledger := &QuotaLedger{
		store:      store,
		guestLimit: 3,
		freeLimit:  5,
		bonusScans: 5,
		now:        clock,
	}
	return ledger, store, &now
}

func TestGuestConsumeToLimit(t *testing.T) {
	ledger, _, _ := testLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status := ledger.CheckAndConsume(ctx, "", "1.2.3.4")
		assert.True(t, status.Allowed, "scan %d should be allowed", i+1)
		assert.Equal(t, 2-i, status.Remaining)
		assert.Equal(t, models.LevelGuest, status.Level)
		assert.Equal(t, 3, status.Limit)
	}

	status := ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	assert.False(t, status.Allowed)
	assert.Equal(t, 0, status.Remaining)
	assert.NotEmpty(t, status.ResetTime)

	resetAt, err := time.Parse(time.RFC3339, status.ResetTime)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), resetAt)
}

func TestUserConsumeIndependentOfGuest(t *testing.T) {
	ledger, _, _ := testLedger(t)
	ctx := context.Background()

	// Guests on other IPs don't affect the user's allowance.
	ledger.CheckAndConsume(ctx, "", "9.9.9.9")

	for i := 0; i < 5; i++ {
		status := ledger.CheckAndConsume(ctx, "user-1", "")
		assert.True(t, status.Allowed)
		assert.Equal(t, models.LevelFree, status.Level)
	}
	status := ledger.CheckAndConsume(ctx, "user-1", "")
	assert.False(t, status.Allowed)
}

func TestPeekDoesNotConsume(t *testing.T) {
	ledger, _, _ := testLedger(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		status := ledger.PeekRemaining(ctx, "", "1.2.3.4")
		assert.True(t, status.Allowed)
		assert.Equal(t, 3, status.Remaining)
	}

	consumed := ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	assert.Equal(t, 2, consumed.Remaining)
}

func TestDecrementFloorsAtZero(t *testing.T) {
	ledger, _, _ := testLedger(t)
	ctx := context.Background()

	ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	ledger.CheckAndConsume(ctx, "", "1.2.3.4")

	result := ledger.Decrement(ctx, "", "1.2.3.4", 5)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, 3, result.Remaining)
}

func TestDecrementWithoutRecordIsNoOp(t *testing.T) {
	ledger, _, _ := testLedger(t)

	result := ledger.Decrement(context.Background(), "user-1", "", 1)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, 5, result.Remaining)
	assert.Equal(t, "no scan count to decrement", result.Message)
}

func TestLoginBonusTransfersGuestUsage(t *testing.T) {
	ledger, _, _ := testLedger(t)
	ctx := context.Background()

	// Guest burns all 3 scans.
	for i := 0; i < 3; i++ {
		status := ledger.CheckAndConsume(ctx, "", "1.2.3.4")
		require.True(t, status.Allowed)
	}
	denied := ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	require.False(t, denied.Allowed)

	// Same person logs in: remaining = min(5, 3+5) = 5.
	bonus := ledger.ApplyLoginBonus(ctx, "user-42", "1.2.3.4")
	assert.True(t, bonus.BonusApplied)
	assert.Equal(t, 3, bonus.GuestScansUsed)
	assert.Equal(t, 5, bonus.BonusScans)
	assert.Equal(t, 5, bonus.Remaining)

	status := ledger.PeekRemaining(ctx, "user-42", "1.2.3.4")
	assert.Equal(t, 5, status.Remaining)
}

func TestLoginBonusIdempotentPerDay(t *testing.T) {
	ledger, store, _ := testLedger(t)
	ctx := context.Background()

	ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	first := ledger.ApplyLoginBonus(ctx, "user-42", "1.2.3.4")
	require.True(t, first.BonusApplied)

	// Guest record is consumed by the transfer.
	_, err := store.Get(ctx, guestKey("1.2.3.4"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	second := ledger.ApplyLoginBonus(ctx, "user-42", "1.2.3.4")
	assert.False(t, second.BonusApplied)

	// Spending scans after the bonus doesn't re-trigger it either.
	ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	third := ledger.ApplyLoginBonus(ctx, "user-42", "1.2.3.4")
	assert.False(t, third.BonusApplied)
}

func TestLoginBonusWithoutGuestUsage(t *testing.T) {
	ledger, _, _ := testLedger(t)

	bonus := ledger.ApplyLoginBonus(context.Background(), "user-42", "1.2.3.4")
	assert.False(t, bonus.BonusApplied)
}

func TestConsumeAppliesPendingBonus(t *testing.T) {
	ledger, _, _ := testLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	}

	// First signed-in scan settles the bonus and consumes one of the 5.
	status := ledger.CheckAndConsume(ctx, "user-42", "1.2.3.4")
	assert.True(t, status.Allowed)
	assert.True(t, status.BonusApplied)
	assert.Equal(t, 4, status.Remaining)
}

func TestDateRolloverResetsCounts(t *testing.T) {
	ledger, _, now := testLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	}
	require.False(t, ledger.CheckAndConsume(ctx, "", "1.2.3.4").Allowed)

	// Next UTC day: the stale record reads as absent.
	*now = now.Add(24 * time.Hour)
	status := ledger.CheckAndConsume(ctx, "", "1.2.3.4")
	assert.True(t, status.Allowed)
	assert.Equal(t, 2, status.Remaining)
}

func TestFailOpenOnStoreErrors(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	ledger := &QuotaLedger{
		store:      brokenStore{},
		guestLimit: 3,
		freeLimit:  5,
		bonusScans: 5,
		now:        func() time.Time { return now },
	}

	status := ledger.CheckAndConsume(context.Background(), "", "1.2.3.4")
	assert.True(t, status.Allowed)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*storage.Record, error) {
	return nil, assert.AnError
}

func (brokenStore) Set(context.Context, string, *storage.Record, time.Time) error {
	return assert.AnError
}

func (brokenStore) Delete(context.Context, string) error { return assert.AnError }

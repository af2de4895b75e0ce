// Package services holds the application core: quota accounting, dish
// identification, and blog publishing. Controllers stay thin and call in here.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oksnap/oksnap/config"
	"github.com/oksnap/oksnap/metrics"
	"github.com/oksnap/oksnap/models"
	"github.com/oksnap/oksnap/storage"
	"github.com/oksnap/oksnap/utils"
)

const (
	scanKeyPrefix  = "daily_scan:"
	guestKeyPrefix = "guest_scan:"
)

// QuotaLedger enforces the daily scan allowance. Guests get a small limit
// keyed by IP; signed-in users get a larger one keyed by account ID. Records
// carry the UTC day they belong to, so yesterday's counter reads as absent
// today without any cleanup job.
//
// The ledger fails open: if the backing store is unreachable the scan is
// allowed and the failure is counted, because losing quota accounting is
// cheaper than refusing every user.
type QuotaLedger struct {
	store      storage.Store
	guestLimit int
	freeLimit  int
	bonusScans int
	now        func() time.Time
}

// NewQuotaLedger builds a ledger from the application config.
func NewQuotaLedger(store storage.Store, cfg *config.AppConfig) *QuotaLedger {
	return &QuotaLedger{
		store:      store,
		guestLimit: cfg.GuestDailyLimit,
		freeLimit:  cfg.FreeDailyLimit,
		bonusScans: cfg.LoginBonusScans,
		now:        time.Now,
	}
}

func (q *QuotaLedger) level(userID string) string {
	if userID == "" {
		return models.LevelGuest
	}
	return models.LevelFree
}

func (q *QuotaLedger) limitFor(level string) int {
	if level == models.LevelGuest {
		return q.guestLimit
	}
	return q.freeLimit
}

// identity is the suffix shared by quota keys: the account ID for users,
// "ip_<addr>" for guests.
func (q *QuotaLedger) identity(userID, ip string) string {
	if userID != "" {
		return userID
	}
	return "ip_" + ip
}

func scanKey(identity string) string { return scanKeyPrefix + identity }
func guestKey(ip string) string      { return guestKeyPrefix + "ip_" + ip }

// load reads a record and normalizes "stale" and "store down" to nil.
// Store errors other than not-found are logged and swallowed (fail open).
func (q *QuotaLedger) load(ctx context.Context, key, today string) *storage.Record {
	rec, err := q.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.QuotaStoreFailures.WithLabelValues("get").Inc()
			utils.Sugar.Warnw("quota store read failed, failing open", "key", key, "error", err)
		}
		return nil
	}
	if rec.Date != today {
		return nil
	}
	return rec
}

func (q *QuotaLedger) save(ctx context.Context, key string, rec *storage.Record) {
	if err := q.store.Set(ctx, key, rec, rec.ResetTime); err != nil {
		metrics.QuotaStoreFailures.WithLabelValues("set").Inc()
		utils.Sugar.Warnw("quota store write failed, failing open", "key", key, "error", err)
	}
}

// CheckAndConsume atomically checks the caller's remaining allowance and, if
// any remains, consumes one scan. When the caller is signed in and we also
// know their IP, any pending login bonus is applied first so the freshly
// signed-in user sees their carried-over balance immediately.
func (q *QuotaLedger) CheckAndConsume(ctx context.Context, userID, ip string) models.QuotaStatus {
	now := q.now()
	today := models.DayString(now)
	level := q.level(userID)
	limit := q.limitFor(level)
	resetAt := models.NextUTCMidnight(now)

	bonusApplied := false
	if userID != "" && ip != "" {
		bonusApplied = q.ApplyLoginBonus(ctx, userID, ip).BonusApplied
	}

	key := scanKey(q.identity(userID, ip))
	rec := q.load(ctx, key, today)

	count := 0
	if rec != nil {
		count = rec.Count
	}
	if count >= limit {
		metrics.ScanDecisions.WithLabelValues(level, "denied").Inc()
		return models.QuotaStatus{
			Allowed:      false,
			Remaining:    0,
			Limit:        limit,
			Level:        level,
			ResetTime:    resetAt.Format(time.RFC3339),
			BonusApplied: bonusApplied,
		}
	}

	count++
	q.save(ctx, key, &storage.Record{
		Count:        count,
		Date:         today,
		Level:        level,
		BonusApplied: rec != nil && rec.BonusApplied,
		ResetTime:    resetAt,
	})

	// Guests are tracked twice: the scan key enforces the limit, the guest
	// key survives as the transfer source for a later login bonus.
	if level == models.LevelGuest {
		q.save(ctx, guestKey(ip), &storage.Record{
			Count:     count,
			Date:      today,
			Level:     models.LevelGuest,
			ResetTime: resetAt,
		})
	}

	metrics.ScanDecisions.WithLabelValues(level, "allowed").Inc()
	return models.QuotaStatus{
		Allowed:      true,
		Remaining:    limit - count,
		Limit:        limit,
		Level:        level,
		BonusApplied: bonusApplied,
	}
}

// PeekRemaining reports the caller's current allowance without consuming a
// scan. Signed-in callers with a known IP get their login bonus applied, so
// the status endpoint alone is enough to settle a guest-to-user transfer.
func (q *QuotaLedger) PeekRemaining(ctx context.Context, userID, ip string) models.QuotaStatus {
	now := q.now()
	today := models.DayString(now)
	level := q.level(userID)
	limit := q.limitFor(level)

	bonusApplied := false
	if userID != "" && ip != "" {
		bonusApplied = q.ApplyLoginBonus(ctx, userID, ip).BonusApplied
	}

	rec := q.load(ctx, scanKey(q.identity(userID, ip)), today)
	count := 0
	if rec != nil {
		count = rec.Count
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return models.QuotaStatus{
		Allowed:      remaining > 0,
		Remaining:    remaining,
		Limit:        limit,
		Level:        level,
		ResetTime:    models.NextUTCMidnight(now).Format(time.RFC3339),
		BonusApplied: bonusApplied,
	}
}

// Decrement refunds scans, e.g. after the user watches a rewarded ad. The
// counter floors at zero; refunding with no record for today succeeds as a
// no-op so clients don't need to special-case fresh days.
func (q *QuotaLedger) Decrement(ctx context.Context, userID, ip string, amount int) models.DecrementResult {
	if amount < 1 {
		amount = 1
	}
	now := q.now()
	today := models.DayString(now)
	level := q.level(userID)
	limit := q.limitFor(level)
	key := scanKey(q.identity(userID, ip))

	rec := q.load(ctx, key, today)
	if rec == nil {
		return models.DecrementResult{
			Success:   true,
			Remaining: limit,
			Limit:     limit,
			Level:     level,
			Count:     0,
			Message:   "no scan count to decrement",
		}
	}

	count := rec.Count - amount
	if count < 0 {
		count = 0
	}
	rec.Count = count
	rec.Date = today
	rec.Level = level
	rec.ResetTime = models.NextUTCMidnight(now)
	q.save(ctx, key, rec)

	if level == models.LevelGuest {
		q.save(ctx, guestKey(ip), &storage.Record{
			Count:     count,
			Date:      today,
			Level:     models.LevelGuest,
			ResetTime: rec.ResetTime,
		})
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return models.DecrementResult{
		Success:   true,
		Remaining: remaining,
		Limit:     limit,
		Level:     level,
		Count:     count,
		Message:   fmt.Sprintf("scan count decremented by %d", amount),
	}
}

// ApplyLoginBonus transfers today's guest usage onto a user record the first
// time that user is seen after signing in. The transfer grants bonusScans on
// top of whatever the guest already used, capped at the free tier limit:
//
//	remaining = min(freeLimit, guestScansUsed + bonusScans)
//
// and the user's counter is set so that exactly that much remains. The guest
// record is deleted afterwards, and a bonusApplied flag on the user record
// makes the whole operation idempotent for the day.
func (q *QuotaLedger) ApplyLoginBonus(ctx context.Context, userID, ip string) models.BonusResult {
	now := q.now()
	today := models.DayString(now)

	userRec := q.load(ctx, scanKey(userID), today)
	if userRec != nil && userRec.BonusApplied {
		return models.BonusResult{BonusApplied: false}
	}

	guestRec := q.load(ctx, guestKey(ip), today)
	if guestRec == nil || guestRec.Count <= 0 {
		return models.BonusResult{BonusApplied: false}
	}

	remaining := guestRec.Count + q.bonusScans
	if remaining > q.freeLimit {
		remaining = q.freeLimit
	}
	resetAt := models.NextUTCMidnight(now)
	q.save(ctx, scanKey(userID), &storage.Record{
		Count:        q.freeLimit - remaining,
		Date:         today,
		Level:        models.LevelFree,
		BonusApplied: true,
		ResetTime:    resetAt,
	})

	if err := q.store.Delete(ctx, guestKey(ip)); err != nil {
		metrics.QuotaStoreFailures.WithLabelValues("delete").Inc()
		utils.Sugar.Warnw("failed to delete guest record after bonus", "ip", ip, "error", err)
	}

	utils.Sugar.Infow("login bonus applied",
		"userId", userID, "guestScansUsed", guestRec.Count, "bonusScans", q.bonusScans, "remaining", remaining)

	return models.BonusResult{
		BonusApplied:   true,
		GuestScansUsed: guestRec.Count,
		BonusScans:     q.bonusScans,
		Remaining:      remaining,
	}
}

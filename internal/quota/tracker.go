// Package quota enforces the free-tier daily limit and per-scenario cooldown.
// Both checks fail open when the store itself fails: availability is chosen
// over strictness, and the error is logged instead of blocking the user.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/didifkup/vibecheck/internal/store"
)

// ErrLimitReached is returned when the free daily limit is exhausted.
var ErrLimitReached = errors.New("daily free limit reached")

// CooldownError reports an active cooldown for a repeated scenario.
type CooldownError struct {
	// RetryAfterHours is the remaining wait, rounded to one decimal place.
	RetryAfterHours float64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("scenario cooldown active, retry in %.1f hours", e.RetryAfterHours)
}

// Tracker runs the free-tier checks against the external store.
type Tracker struct {
	usage      *store.UsageStore
	cooldowns  *store.CooldownStore
	dailyLimit int
	window     time.Duration
	now        func() time.Time
}

// NewTracker creates a Tracker with the given daily limit and cooldown
// window.
func NewTracker(usage *store.UsageStore, cooldowns *store.CooldownStore, dailyLimit int, window time.Duration) *Tracker {
	return &Tracker{
		usage:      usage,
		cooldowns:  cooldowns,
		dailyLimit: dailyLimit,
		window:     window,
		now:        time.Now,
	}
}

// ConsumeDaily checks and increments the user's daily counter. A counter
// whose updated_at predates the current UTC day is treated as zero before the
// check (read-time reset). Returns ErrLimitReached when the limit is already
// met; on store failure it logs and allows the request.
func (t *Tracker) ConsumeDaily(ctx context.Context, userID string) error {
	row, err := t.usage.Get(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("usage read failed, failing open")
		return nil
	}

	now := t.now().UTC()
	used := 0
	if row != nil {
		used = row.AnalysesUsed
		if row.UpdatedAt.Before(startOfDayUTC(now)) {
			used = 0
		}
	}

	if used >= t.dailyLimit {
		return ErrLimitReached
	}

	if err := t.usage.Upsert(ctx, userID, used+1, now); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("usage write failed, failing open")
	}
	return nil
}

// CheckCooldown rejects a scenario fingerprint seen less than the cooldown
// window ago. It does not refresh the record; RecordScenarioSeen does that
// once the model has actually been invoked. On store failure it logs and
// allows the request.
func (t *Tracker) CheckCooldown(ctx context.Context, userID, fingerprint string) error {
	row, err := t.cooldowns.Get(ctx, userID, fingerprint)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("cooldown read failed, failing open")
		return nil
	}
	if row == nil {
		return nil
	}

	elapsed := t.now().Sub(row.LastSeenAt)
	if elapsed >= t.window {
		return nil
	}

	remaining := (t.window - elapsed).Hours()
	return &CooldownError{RetryAfterHours: math.Round(remaining*10) / 10}
}

// RecordScenarioSeen refreshes the cooldown timestamp for a fingerprint.
// Called after a successful model invocation; failures are logged only.
func (t *Tracker) RecordScenarioSeen(ctx context.Context, userID, fingerprint string) {
	if err := t.cooldowns.Upsert(ctx, userID, fingerprint, t.now().UTC()); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("cooldown write failed")
	}
}

// startOfDayUTC returns midnight UTC of the given instant's day.
func startOfDayUTC(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

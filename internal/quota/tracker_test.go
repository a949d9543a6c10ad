package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"

	"github.com/didifkup/vibecheck/internal/store"
)

func newTestTracker(t *testing.T, limit int, window time.Duration) (*Tracker, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quota.db")
	st, err := store.NewStoreWithDialector(sqlite.Open(path), store.Config{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tracker := NewTracker(store.NewUsageStore(st), store.NewCooldownStore(st), limit, window)
	return tracker, st
}

func TestConsumeDaily_LimitEnforced(t *testing.T) {
	tracker, _ := newTestTracker(t, 2, 6*time.Hour)
	ctx := context.Background()

	require.NoError(t, tracker.ConsumeDaily(ctx, "user-1"))
	require.NoError(t, tracker.ConsumeDaily(ctx, "user-1"))
	assert.ErrorIs(t, tracker.ConsumeDaily(ctx, "user-1"), ErrLimitReached)

	// A different user has an independent counter.
	assert.NoError(t, tracker.ConsumeDaily(ctx, "user-2"))
}

func TestConsumeDaily_ResetsAtUTCMidnight(t *testing.T) {
	tracker, st := newTestTracker(t, 2, 6*time.Hour)
	ctx := context.Background()

	// A counter written yesterday counts as zero today.
	usage := store.NewUsageStore(st)
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, usage.Upsert(ctx, "user-1", 2, yesterday))

	require.NoError(t, tracker.ConsumeDaily(ctx, "user-1"))

	row, err := usage.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 1, row.AnalysesUsed, "stale counter restarts at 1, not 3")
}

func TestConsumeDaily_FailsOpenOnStoreError(t *testing.T) {
	tracker, st := newTestTracker(t, 2, 6*time.Hour)
	require.NoError(t, st.Close())

	assert.NoError(t, tracker.ConsumeDaily(context.Background(), "user-1"))
}

func TestCheckCooldown(t *testing.T) {
	tracker, st := newTestTracker(t, 2, 6*time.Hour)
	ctx := context.Background()
	cooldowns := store.NewCooldownStore(st)

	// Never-seen fingerprint passes.
	assert.NoError(t, tracker.CheckCooldown(ctx, "user-1", "hash-a"))

	// Seen one hour ago: blocked with ~5 hours remaining.
	require.NoError(t, cooldowns.Upsert(ctx, "user-1", "hash-a", time.Now().UTC().Add(-time.Hour)))
	err := tracker.CheckCooldown(ctx, "user-1", "hash-a")
	var cdErr *CooldownError
	require.ErrorAs(t, err, &cdErr)
	assert.InDelta(t, 5.0, cdErr.RetryAfterHours, 0.11)

	// Seen past the full window: passes again.
	require.NoError(t, cooldowns.Upsert(ctx, "user-1", "hash-a", time.Now().UTC().Add(-6*time.Hour-time.Minute)))
	assert.NoError(t, tracker.CheckCooldown(ctx, "user-1", "hash-a"))
}

func TestCheckCooldown_DoesNotRefresh(t *testing.T) {
	tracker, st := newTestTracker(t, 2, 6*time.Hour)
	ctx := context.Background()
	cooldowns := store.NewCooldownStore(st)

	seen := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, cooldowns.Upsert(ctx, "user-1", "hash-a", seen))

	require.Error(t, tracker.CheckCooldown(ctx, "user-1", "hash-a"))

	row, err := cooldowns.Get(ctx, "user-1", "hash-a")
	require.NoError(t, err)
	assert.WithinDuration(t, seen, row.LastSeenAt, time.Second, "a rejected check must not extend the window")
}

func TestCheckCooldown_FailsOpenOnStoreError(t *testing.T) {
	tracker, st := newTestTracker(t, 2, 6*time.Hour)
	require.NoError(t, st.Close())

	assert.NoError(t, tracker.CheckCooldown(context.Background(), "user-1", "hash-a"))
}

func TestRecordScenarioSeen(t *testing.T) {
	tracker, st := newTestTracker(t, 2, 6*time.Hour)
	ctx := context.Background()

	tracker.RecordScenarioSeen(ctx, "user-1", "hash-a")

	row, err := store.NewCooldownStore(st).Get(ctx, "user-1", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.WithinDuration(t, time.Now().UTC(), row.LastSeenAt, 5*time.Second)
}

func TestCooldownError_Message(t *testing.T) {
	err := &CooldownError{RetryAfterHours: 4.5}
	assert.Equal(t, "scenario cooldown active, retry in 4.5 hours", err.Error())
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CooldownStore reads and writes per-(user, fingerprint) cooldown records.
type CooldownStore struct {
	store *Store
}

// NewCooldownStore creates a CooldownStore.
func NewCooldownStore(store *Store) *CooldownStore {
	return &CooldownStore{store: store}
}

// Get returns the cooldown row for a (user, fingerprint) pair, or nil if the
// pair has never been seen.
func (s *CooldownStore) Get(ctx context.Context, userID, inputHash string) (*ScenarioCooldown, error) {
	var cooldown ScenarioCooldown
	err := s.store.DB.WithContext(ctx).
		First(&cooldown, "user_id = ? AND input_hash = ?", userID, inputHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	return &cooldown, nil
}

// Upsert refreshes last_seen_at for a (user, fingerprint) pair.
func (s *CooldownStore) Upsert(ctx context.Context, userID, inputHash string, lastSeenAt time.Time) error {
	cooldown := ScenarioCooldown{UserID: userID, InputHash: inputHash, LastSeenAt: lastSeenAt}
	err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "input_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
	}).Create(&cooldown).Error
	if err != nil {
		return fmt.Errorf("upsert cooldown: %w", err)
	}
	return nil
}

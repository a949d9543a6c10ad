package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StreakStore reads and writes per-user engagement streaks.
type StreakStore struct {
	store *Store
}

// NewStreakStore creates a StreakStore.
func NewStreakStore(store *Store) *StreakStore {
	return &StreakStore{store: store}
}

// Get returns the streak row for a user, or nil if none exists yet.
func (s *StreakStore) Get(ctx context.Context, userID string) (*Streak, error) {
	var streak Streak
	err := s.store.DB.WithContext(ctx).First(&streak, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return &streak, nil
}

// Upsert writes the full streak row, creating it if absent.
func (s *StreakStore) Upsert(ctx context.Context, streak *Streak) error {
	err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_checkin_date", "current_streak", "best_streak", "total_checks", "updated_at",
		}),
	}).Create(streak).Error
	if err != nil {
		return fmt.Errorf("upsert streak: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageStore reads and writes per-user daily usage counters.
type UsageStore struct {
	store *Store
}

// NewUsageStore creates a UsageStore.
func NewUsageStore(store *Store) *UsageStore {
	return &UsageStore{store: store}
}

// Get returns the usage row for a user, or nil if none exists yet.
func (s *UsageStore) Get(ctx context.Context, userID string) (*UserUsage, error) {
	var usage UserUsage
	err := s.store.DB.WithContext(ctx).First(&usage, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return &usage, nil
}

// Upsert sets the counter and timestamp for a user, creating the row if
// absent.
func (s *UsageStore) Upsert(ctx context.Context, userID string, analysesUsed int, updatedAt time.Time) error {
	usage := UserUsage{UserID: userID, AnalysesUsed: analysesUsed, UpdatedAt: updatedAt}
	err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"analyses_used", "updated_at"}),
	}).Create(&usage).Error
	if err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}
	return nil
}

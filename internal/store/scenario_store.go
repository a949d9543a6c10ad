package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the Postgres error code for duplicate keys.
const pgUniqueViolation = "23505"

// ScenarioStore writes and lists analyzed scenarios.
type ScenarioStore struct {
	store *Store
}

// NewScenarioStore creates a ScenarioStore.
func NewScenarioStore(store *Store) *ScenarioStore {
	return &ScenarioStore{store: store}
}

// Insert records one analyzed scenario. A duplicate-key conflict is not an
// error: the same fingerprint can legitimately be re-analyzed after the
// cooldown window.
func (s *ScenarioStore) Insert(ctx context.Context, scenario *Scenario) error {
	err := s.store.DB.WithContext(ctx).Create(scenario).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil
		}
		return fmt.Errorf("insert scenario: %w", err)
	}
	return nil
}

// ListRecent returns the user's most recent scenarios, newest first.
func (s *ScenarioStore) ListRecent(ctx context.Context, userID string, limit int) ([]Scenario, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var scenarios []Scenario
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&scenarios).Error
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	return scenarios, nil
}

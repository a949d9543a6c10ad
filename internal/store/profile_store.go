package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileStore reads subscription status and applies billing webhook updates.
type ProfileStore struct {
	store *Store
}

// NewProfileStore creates a ProfileStore.
func NewProfileStore(store *Store) *ProfileStore {
	return &ProfileStore{store: store}
}

// Get returns the profile for a user, or nil if none exists.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	err := s.store.DB.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// SubscriptionStatus returns the raw subscription status for a user, or ""
// when there is no profile or no status.
func (s *ProfileStore) SubscriptionStatus(ctx context.Context, userID string) (string, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile == nil || !profile.SubscriptionStatus.Valid {
		return "", nil
	}
	return profile.SubscriptionStatus.String, nil
}

// Upsert writes the full profile row, creating it if absent.
func (s *ProfileStore) Upsert(ctx context.Context, profile *Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "subscription_status", "customer_id", "subscription_id",
			"current_period_end", "updated_at",
		}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// FindByEmail returns the profile with the given email, or nil.
func (s *ProfileStore) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	var profile Profile
	err := s.store.DB.WithContext(ctx).First(&profile, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile by email: %w", err)
	}
	return &profile, nil
}

// FindByCustomer returns the profile with the given billing customer id, or
// nil.
func (s *ProfileStore) FindByCustomer(ctx context.Context, customerID string) (*Profile, error) {
	var profile Profile
	err := s.store.DB.WithContext(ctx).First(&profile, "customer_id = ?", customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile by customer: %w", err)
	}
	return &profile, nil
}

// UpdateSubscription applies a billing event to the profile matched by email
// first, then by customer id. A miss on both is not an error; the webhook
// acknowledges events for users this store has never seen.
func (s *ProfileStore) UpdateSubscription(ctx context.Context, email, customerID string, updates *Profile) error {
	profile, err := s.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if profile == nil && customerID != "" {
		profile, err = s.FindByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
	}
	if profile == nil {
		return nil
	}

	updates.UserID = profile.UserID
	if !updates.Email.Valid {
		updates.Email = profile.Email
	}
	return s.Upsert(ctx, updates)
}

package store

import (
	"database/sql"
	"time"
)

// UserUsage tracks the per-user daily analysis counter. The counter is reset
// at read time: an updated_at before the current UTC day means zero used.
type UserUsage struct {
	UserID       string    `gorm:"primaryKey;type:text"`
	AnalysesUsed int       `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserUsage) TableName() string { return "user_usage" }

// ScenarioCooldown records when a (user, fingerprint) pair was last analyzed.
type ScenarioCooldown struct {
	UserID     string    `gorm:"primaryKey;type:text"`
	InputHash  string    `gorm:"primaryKey;type:text"`
	LastSeenAt time.Time `gorm:"not null"`
}

func (ScenarioCooldown) TableName() string { return "scenario_cooldowns" }

// Scenario is one analyzed situation with its computed verdict, kept for the
// user's history view.
type Scenario struct {
	ID           int64          `gorm:"primaryKey;autoIncrement"`
	UserID       string         `gorm:"index;type:text;not null"`
	InputHash    string         `gorm:"index;type:text;not null"`
	Happened     string         `gorm:"type:text;not null"`
	YouDid       string         `gorm:"type:text;not null"`
	TheyDid      string         `gorm:"type:text;not null"`
	Relationship sql.NullString `gorm:"type:text"`
	Context      sql.NullString `gorm:"type:text"`
	Tone         string         `gorm:"type:text;not null"`
	RiskLabel    string         `gorm:"type:text;not null"`
	Result       string         `gorm:"type:text;not null"` // full AnalysisResult JSON
	CreatedAt    time.Time      `gorm:"index:idx_scenarios_created,sort:desc;not null"`
}

func (Scenario) TableName() string { return "scenarios" }

// Streak tracks per-user engagement: consecutive check-in days and totals.
// LastCheckinDate is a UTC calendar date (YYYY-MM-DD).
type Streak struct {
	UserID          string    `gorm:"primaryKey;type:text"`
	LastCheckinDate string    `gorm:"type:text;not null"`
	CurrentStreak   int       `gorm:"not null;default:0"`
	BestStreak      int       `gorm:"not null;default:0"`
	TotalChecks     int       `gorm:"not null;default:0"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (Streak) TableName() string { return "streaks" }

// Profile mirrors the subset of the user profile this service reads and the
// billing webhook writes. SubscriptionStatus in {active, trialing} means paid
// tier.
type Profile struct {
	UserID             string         `gorm:"primaryKey;type:text"`
	Email              sql.NullString `gorm:"index;type:text"`
	SubscriptionStatus sql.NullString `gorm:"type:text"`
	CustomerID         sql.NullString `gorm:"index;type:text"`
	SubscriptionID     sql.NullString `gorm:"type:text"`
	CurrentPeriodEnd   sql.NullTime
	UpdatedAt          time.Time `gorm:"not null"`
}

func (Profile) TableName() string { return "profiles" }

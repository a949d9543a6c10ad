package store

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: quota tables (usage counters, scenario cooldowns)
		{
			ID: "001_quota_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&UserUsage{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&ScenarioCooldown{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("user_usage", "scenario_cooldowns")
			},
		},

		// Migration 002: scenario history
		{
			ID: "002_scenarios",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Scenario{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("scenarios")
			},
		},

		// Migration 003: streaks
		{
			ID: "003_streaks",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Streak{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("streaks")
			},
		},

		// Migration 004: profiles (subscription status mirror for billing sync)
		{
			ID: "004_profiles",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Profile{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("profiles")
			},
		},
	})

	return m.Migrate()
}

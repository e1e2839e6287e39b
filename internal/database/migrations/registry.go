package migrations

import (
	"github.com/jmylchreest/hlsgate/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates the database tables.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create stream event log table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.StreamEvent{},
			)
		},
		Down: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable("stream_events") {
				return tx.Migrator().DropTable("stream_events")
			}
			return nil
		},
	}
}

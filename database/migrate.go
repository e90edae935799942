package database

import (
	"fmt"

	"github.com/savagetongue/mess-connect0209/utils"
	"gorm.io/gorm"
)

// Migrate creates the records and index_entries tables and checks that the
// unique constraints the stores rely on are in place.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&RecordRow{}, &IndexEntry{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	checks := []struct {
		model interface{}
		index string
	}{
		{&IndexEntry{}, "idx_index_entries_name_entity"},
	}
	for _, c := range checks {
		if !db.Migrator().HasIndex(c.model, c.index) {
			utils.ErrorLogger.Errorf("Missing index %s, creating it", c.index)
			if err := db.Migrator().CreateIndex(c.model, c.index); err != nil {
				return fmt.Errorf("create index %s: %w", c.index, err)
			}
		}
		utils.InfoLogger.Printf("Index verified: %s", c.index)
	}

	return nil
}

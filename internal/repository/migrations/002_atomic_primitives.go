package migrations

import "gorm.io/gorm"

// AtomicPrimitives adds the indexes the counter and version-sequence
// queries depend on for a conditional-update plan instead of a table
// scan. Grounded on AddTradeNetting's pattern of CREATE INDEX IF NOT
// EXISTS statements run via db.Exec after AutoMigrate.
func AtomicPrimitives(db *gorm.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_account_bot_counters_account
		 ON account_bot_counters(account_id)`,

		`CREATE INDEX IF NOT EXISTS idx_config_versions_bot_version
		 ON config_versions(bot_id, version)`,

		`CREATE INDEX IF NOT EXISTS idx_bots_status_heartbeat
		 ON bots(status, last_heartbeat_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}

// Package migrations runs schema setup the same way
// ksred-klear-api/internal/database/migrations does: plain functions
// taking a *gorm.DB, AutoMigrate for tables, db.Exec for anything
// AutoMigrate cannot express.
package migrations

import (
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// CoreTables creates the account/bot/config/VM tables via AutoMigrate,
// mirroring ksred-klear-api's NewDatabase AutoMigrate call.
func CoreTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
		&domain.AccountBotCounter{},
		&domain.Bot{},
		&domain.ConfigVersion{},
		&domain.VMRecord{},
	)
}

package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"gorm.io/gorm"
)

func createStatusChangesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_status_changes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.StatusChangeModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_status_changes_tx_changed ON status_changes (transaction_id, changed_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.StatusChangeModel{})
		},
	}
}

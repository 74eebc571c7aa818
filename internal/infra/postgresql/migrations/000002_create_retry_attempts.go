package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"gorm.io/gorm"
)

func createRetryAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_retry_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RetryAttemptModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_tx_number ON retry_attempts (transaction_id, attempt_number)`,
				// At most one open attempt per exception, enforced by the store itself.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_single_open ON retry_attempts (transaction_id) WHERE status IN ('PENDING', 'IN_PROGRESS')`,
				`CREATE INDEX IF NOT EXISTS idx_attempts_stale ON retry_attempts (initiated_at) WHERE status IN ('PENDING', 'IN_PROGRESS')`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RetryAttemptModel{})
		},
	}
}

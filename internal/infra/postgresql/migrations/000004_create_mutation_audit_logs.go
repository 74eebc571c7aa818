package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"gorm.io/gorm"
)

func createMutationAuditLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_mutation_audit_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MutationAuditLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_audit_performer_time ON mutation_audit_logs (performed_by, performed_at)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_transaction_id ON mutation_audit_logs (transaction_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MutationAuditLogModel{})
		},
	}
}

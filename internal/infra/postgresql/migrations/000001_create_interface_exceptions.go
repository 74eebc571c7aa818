package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"gorm.io/gorm"
)

func createInterfaceExceptionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_interface_exceptions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ExceptionModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_exceptions_status_severity_created ON interface_exceptions (status, severity, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_exceptions_customer_created ON interface_exceptions (customer_id, created_at) WHERE customer_id <> ''`,
				`CREATE INDEX IF NOT EXISTS idx_exceptions_interface_type ON interface_exceptions (interface_type)`,
				`CREATE INDEX IF NOT EXISTS idx_exceptions_created_at ON interface_exceptions (created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ExceptionModel{})
		},
	}
}

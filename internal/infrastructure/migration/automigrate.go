package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/moneta-pay/moneta/internal/infrastructure/persistence/models"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// AutoMigrateModels returns every model managed by GORM AutoMigrate.
func AutoMigrateModels() []interface{} {
	return []interface{}{
		&models.InvoiceModel{},
		&models.InvoiceAddressModel{},
		&models.PaymentModel{},
	}
}

// GormAutoMigrateStrategy migrates the schema from struct definitions.
// Intended for development only.
type GormAutoMigrateStrategy struct {
	logger logger.Interface
}

func NewGormAutoMigrateStrategy() Strategy {
	return &GormAutoMigrateStrategy{
		logger: logger.NewLogger().With("component", "migration.gorm-auto"),
	}
}

func (s *GormAutoMigrateStrategy) Migrate(db *gorm.DB, models ...interface{}) error {
	if len(models) == 0 {
		models = AutoMigrateModels()
	}

	s.logger.Infow("starting gorm auto migration", "models_count", len(models))

	if err := db.AutoMigrate(models...); err != nil {
		s.logger.Errorw("auto migration failed", "error", err)
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	s.logger.Infow("auto migration completed successfully")
	return nil
}

func (s *GormAutoMigrateStrategy) GetName() string {
	return "gorm_auto_migrate"
}

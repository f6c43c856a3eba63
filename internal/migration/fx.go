package migration

import (
	"github.com/smallbiznis/recoverly/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Apply brings the schema up to date: embedded SQL migrations on postgres, model auto-migration elsewhere.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != config.DBTypePostgres {
		log.Info("applying schema from models", zap.String("db_type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying sql migrations")
	return RunMigrations(sqlDB)
}

package migration

import (
	"github.com/smallbiznis/kigyomail/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply runs the embedded migrations when the connection is PostgreSQL.
// Other dialects are provisioned out of band.
func Apply(conn *gorm.DB, log *zap.Logger) error {
	if !db.IsPostgres(conn) {
		log.Warn("skipping migrations for non-postgres database",
			zap.String("dialect", conn.Dialector.Name()),
		)
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

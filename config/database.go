package config

import (
	"log/slog"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/vnkhanh/dating-server/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDB opens the configured database and migrates every table.
func ConnectDB(c DBConfig, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch c.Driver {
	case "sqlite":
		dialector = sqlite.Open(c.Path)
	default:
		dialector = postgres.Open(c.DSN())
	}

	// TranslateError turns unique violations into gorm.ErrDuplicatedKey on
	// both drivers.
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "config.ConnectDB.Open")
	}
	if c.Driver == "sqlite" {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "config.ConnectDB.DB")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("connected to database & migrated", "driver", c.Driver)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "config.Migrate")
	}
	return nil
}

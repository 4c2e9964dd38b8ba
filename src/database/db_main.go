package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"atcpay/src/database/migrations"
	"atcpay/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	db, err := Open(config, config.DatabaseURLMain)
	if err != nil {
		return err
	}

	if err := Migrate(db); err != nil {
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", config.DBDriver).Info("[database] MainDB connection established")

	return nil
}

// Migrate brings the write-side schema up to date and applies pending data migrations.
func Migrate(db *gorm.DB) error {
	// Legacy column renames must happen before AutoMigrate adds the new columns.
	if err := migrations.PrepareLegacyOrderColumns(db); err != nil {
		return fmt.Errorf("failed to prepare legacy order columns: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Order{},
		&model.Transaction{},
		&model.Wallet{},
		&model.Exception{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

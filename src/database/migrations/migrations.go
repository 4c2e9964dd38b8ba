// package migrations
package migrations

import (
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration records an applied data migration.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

func ensureDataMigrationsTable(db *gorm.DB) error {
	return db.AutoMigrate(&DataMigration{})
}

// dataMigration is one named data fix applied after AutoMigrate.
type dataMigration struct {
	id string
	fn func(*gorm.DB) error
}

// orderMigrations run in slice order. Append new entries at the bottom with a stable id.
var orderMigrations = []dataMigration{
	{id: "00001_rename_legacy_order_statuses", fn: renameLegacyOrderStatuses},
	{id: "00002_default_expired_order_owner", fn: defaultExpiredOrderOwner},
}

// RunOnce applies fn unless migrationID is already recorded. It reports whether fn ran.
// The record is written in the same transaction as fn.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) (bool, error) {
	if db == nil {
		return false, nil
	}
	if migrationID == "" {
		return false, errors.New("migration id is empty")
	}
	if fn == nil {
		return false, fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := ensureDataMigrationsTable(db); err != nil {
		return false, fmt.Errorf("ensure data migrations table: %w", err)
	}

	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var recorded int64
		if err := tx.Model(&DataMigration{}).Where("id = ?", migrationID).Count(&recorded).Error; err != nil {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}
		if recorded > 0 {
			return nil
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}
		if err := tx.Create(&DataMigration{ID: migrationID, AppliedAt: time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// Run brings stored orders written by older releases in line with the current lifecycle.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	for _, m := range orderMigrations {
		applied, err := RunOnce(db, m.id, m.fn)
		if err != nil {
			return err
		}
		if applied {
			logger.WithField("migration", m.id).Info("[database] data migration applied")
		}
	}
	return nil
}

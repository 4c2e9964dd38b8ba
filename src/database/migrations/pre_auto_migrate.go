package migrations

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// legacyOrderColumns lists columns imported from the document store under their old names.
var legacyOrderColumns = map[string]string{
	"asset_transaction": "asset_transaction_id",
	"asset_usd_price":   "asset_usd",
}

// PrepareLegacyOrderColumns renames legacy order columns so AutoMigrate does not create
// empty duplicates next to them. Only postgres schemas carry legacy columns.
func PrepareLegacyOrderColumns(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	for legacy, current := range legacyOrderColumns {
		_, legacyExists, err := lookupColumnType(db, "orders", legacy)
		if err != nil {
			return fmt.Errorf("inspect orders.%s: %w", legacy, err)
		}
		if !legacyExists {
			continue
		}

		_, currentExists, err := lookupColumnType(db, "orders", current)
		if err != nil {
			return fmt.Errorf("inspect orders.%s: %w", current, err)
		}
		if currentExists {
			continue
		}

		if err := db.Exec(fmt.Sprintf("ALTER TABLE orders RENAME COLUMN %s TO %s", legacy, current)).Error; err != nil {
			return fmt.Errorf("rename orders.%s: %w", legacy, err)
		}
	}

	return nil
}

func lookupColumnType(db *gorm.DB, table, column string) (dataType string, exists bool, err error) {
	row := db.Raw(
		`SELECT data_type FROM information_schema.columns WHERE table_name = ? AND column_name = ?`,
		table,
		column,
	).Row()

	if scanErr := row.Scan(&dataType); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, scanErr
	}

	return dataType, true, nil
}

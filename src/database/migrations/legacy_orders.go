package migrations

import (
	"fmt"

	"gorm.io/gorm"

	"atcpay/src/model"
)

// legacyStatuses maps the status names written by the first version of the service.
var legacyStatuses = map[string]string{
	"waiting_for_payment":      model.StatusAwaitingPayment,
	"waiting_for_confirmation": model.StatusAwaitingConfirmation,
	"done":                     model.StatusSettled,
}

func renameLegacyOrderStatuses(db *gorm.DB) error {
	for legacy, current := range legacyStatuses {
		if err := db.Model(&model.Order{}).
			Where("status = ?", legacy).
			Update("status", current).Error; err != nil {
			return fmt.Errorf("rename status %s: %w", legacy, err)
		}
	}
	return nil
}

// defaultExpiredOrderOwner applies the sweeper's owner sentinel to orders expired before it existed.
func defaultExpiredOrderOwner(db *gorm.DB) error {
	return db.Model(&model.Order{}).
		Where("status = ? AND (user_id IS NULL OR user_id = '')", model.StatusExpired).
		Update("user_id", model.UnknownUserID).Error
}

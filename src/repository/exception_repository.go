package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"atcpay/src/database"
	"atcpay/src/model"
)

// ExceptionRepository handles persistence of operator-facing order incidents.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"order_id": exc.OrderID,
		"kind":     exc.Kind,
		"module":   exc.Module,
		"level":    exc.Level,
	}).Warn("Persisting order exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// FindByOrderID lists the incidents recorded for an order, newest first.
func (r *ExceptionRepository) FindByOrderID(ctx context.Context, orderID string) ([]model.Exception, error) {
	var out []model.Exception
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

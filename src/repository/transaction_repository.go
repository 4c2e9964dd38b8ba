package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"atcpay/src/database"
	"atcpay/src/model"
)

// TransactionRepository stores ledger audit records. Records are never updated.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{db: database.MainDB}
}

// NewTransactionReadRepository serves history endpoints from the read-only connection.
func NewTransactionReadRepository() *TransactionRepository {
	return &TransactionRepository{db: database.ReadOnlyDB}
}

func (r *TransactionRepository) WithDB(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a ledger audit record.
func (r *TransactionRepository) Create(ctx context.Context, record *model.Transaction) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "TransactionRepository",
			"op":      "Create",
			"type":    record.Type,
			"user_id": record.UserID,
		}).WithError(err).Error("Failed to create transaction")

		return err
	}
	return nil
}

// FindWithdrawals lists the withdrawals a user made from wallet, newest first.
func (r *TransactionRepository) FindWithdrawals(
	ctx context.Context,
	userID string,
	wallet string,
) ([]model.Transaction, error) {

	var records []model.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND wallet = ?", userID, model.TransactionTypeWithdraw, wallet).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "TransactionRepository",
			"op":      "FindWithdrawals",
			"user_id": userID,
			"wallet":  wallet,
		}).WithError(err).Error("Failed to fetch withdrawals")

		return nil, err
	}
	return records, nil
}

// FindByOrderID returns the settlement record of an order, or (nil, nil).
func (r *TransactionRepository) FindByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	var records []model.Transaction
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Limit(1).Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

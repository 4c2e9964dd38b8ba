package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atcpay/src/database"
	"atcpay/src/model"
)

// WalletRepository stores holding wallets on the settlement ledger.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository() *WalletRepository {
	return &WalletRepository{db: database.MainDB}
}

func (r *WalletRepository) WithDB(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// FindByOwner returns the user's wallet of walletType for assetCode, or (nil, nil).
func (r *WalletRepository) FindByOwner(
	ctx context.Context,
	userID string,
	walletType string,
	assetCode string,
) (*model.Wallet, error) {

	var wallets []model.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND asset_code = ?", userID, walletType, assetCode).
		Limit(1).
		Find(&wallets).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "WalletRepository",
			"op":      "FindByOwner",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch wallet")

		return nil, err
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	return &wallets[0], nil
}

// FindByPublicKey returns the user's wallet with publicKey, or (nil, nil).
func (r *WalletRepository) FindByPublicKey(ctx context.Context, userID, publicKey string) (*model.Wallet, error) {
	var wallets []model.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND public_key = ?", userID, publicKey).
		Limit(1).
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	return &wallets[0], nil
}

// FindByUser lists a user's wallets of walletType.
func (r *WalletRepository) FindByUser(ctx context.Context, userID, walletType string) ([]model.Wallet, error) {
	var wallets []model.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, walletType).
		Order("id ASC").
		Find(&wallets).Error
	return wallets, err
}

// CreateIfAbsent inserts wallet unless the owner already has one. It returns true
// when this call inserted the row.
func (r *WalletRepository) CreateIfAbsent(ctx context.Context, wallet *model.Wallet) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(wallet)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "WalletRepository",
			"op":         "CreateIfAbsent",
			"user_id":    wallet.UserID,
			"public_key": wallet.PublicKey,
		}).WithError(res.Error).Error("Failed to create wallet")

		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const WalletTypeStaking = "staking"

// Wallet is a user's holding account on the settlement ledger.
type Wallet struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          string          `gorm:"size:60;not null;uniqueIndex:idx_wallet_owner" json:"userId"`
	Type            string          `gorm:"size:20;not null;uniqueIndex:idx_wallet_owner" json:"type"`
	AssetCode       string          `gorm:"size:20;not null;uniqueIndex:idx_wallet_owner" json:"assetCode"`
	AssetIssuer     string          `gorm:"size:100" json:"assetIssuer"`
	PublicKey       string          `gorm:"size:100;not null;uniqueIndex" json:"publicKey"`
	Secret          string          `gorm:"size:512;not null" json:"-"`
	StartingBalance decimal.Decimal `gorm:"type:numeric(30,10)" json:"startingBalance"`
	FundingAccount  string          `gorm:"size:100" json:"fundingAccount"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (Wallet) TableName() string {
	return "wallets"
}

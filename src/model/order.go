package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusAwaitingPayment      = "awaiting_payment"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusConfirmed            = "confirmed"
	StatusSettled              = "settled"
	StatusExpired              = "expired"
)

const (
	CurrencyBTC  = "BTC"
	CurrencyETH  = "ETH"
	CurrencyUSDT = "USDT"
)

// UnknownUserID is stamped on orders that reach a terminal state without an owner.
const UnknownUserID = "0"

// Order is a single purchase of the asset paid with BTC, ETH or USDT.
type Order struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Pair string `gorm:"size:20;not null" json:"pair"`

	AssetUSD              decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"assetUSD"`
	AcceptableCurrency    string          `gorm:"size:10;not null;index" json:"acceptableCurrency"`
	AcceptableCurrencyUSD decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"acceptableCurrencyUSD"`
	PairPrice             decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"pairPrice"`
	Amount                decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"amount"`
	TotalPrice            decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"totalPrice"`

	WalletAddress string `gorm:"size:100;not null;uniqueIndex" json:"walletAddress"`
	WalletSecret  string `gorm:"size:512;not null" json:"-"`

	AssetCode   string `gorm:"size:20;not null" json:"assetCode"`
	AssetIssuer string `gorm:"size:100" json:"assetIssuer"`

	APIUser string `gorm:"size:100;column:api_user" json:"-"`
	UserID  string `gorm:"size:60;index" json:"userId"`

	Status         string    `gorm:"size:30;not null;index;default:awaiting_payment" json:"status"`
	ExpirationDate time.Time `gorm:"not null;index" json:"expirationDate"`

	ConfirmationsNeeded int64             `gorm:"not null" json:"confirmationsNeeded"`
	Confirmations       int64             `gorm:"not null;default:0" json:"confirmations"`
	Transaction         *ChainTransaction `gorm:"serializer:json;column:chain_transaction" json:"-"`
	TxHash              string            `gorm:"size:100;index" json:"txHash,omitempty"`
	PaymentBlockHeight  *int64            `json:"paymentBlockHeight,omitempty"`

	TransactionReceivedAt  *time.Time `json:"transactionReceivedAt,omitempty"`
	TransactionConfirmedAt *time.Time `json:"transactionConfirmedAt,omitempty"`
	ExpiredAt              *time.Time `json:"expiredAt,omitempty"`
	SettledAt              *time.Time `json:"settledAt,omitempty"`

	AssetTransactionID *string `gorm:"size:36" json:"assetTransactionId,omitempty"`

	// Settlement exclusivity. A non-null claim means some process owns the ledger submission.
	SettlementClaim     *string    `gorm:"size:36;index" json:"-"`
	SettlementClaimedAt *time.Time `json:"-"`
	LastSettlementError string     `gorm:"size:1024" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// ConfirmationsNeededFor returns the fixed confirmation depth per accepted currency.
func ConfirmationsNeededFor(currency string) int64 {
	switch currency {
	case CurrencyBTC:
		return 2
	case CurrencyETH, CurrencyUSDT:
		return 6
	default:
		return 0
	}
}

// IsSupportedCurrency reports whether payments in currency can be tracked.
func IsSupportedCurrency(currency string) bool {
	return ConfirmationsNeededFor(currency) > 0
}

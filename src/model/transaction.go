package model

import "time"

const (
	TransactionTypeStakingBuy = "StakingBuy"
	TransactionTypeWithdraw   = "withdraw"
)

// Transaction is the append-only audit record of a ledger payment made by the engine.
type Transaction struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Type      string         `gorm:"size:30;not null;index" json:"type"`
	UserID    string         `gorm:"size:60;not null;index" json:"userId"`
	OrderID   *string        `gorm:"size:36;uniqueIndex" json:"orderId,omitempty"`
	Wallet    string         `gorm:"size:100;index" json:"wallet,omitempty"`
	Extra     map[string]any `gorm:"serializer:json" json:"extra,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}

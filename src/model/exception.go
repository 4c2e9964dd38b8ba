package model

import "time"

const (
	ExceptionKindInvalidTransition = "invalid_transition"
	ExceptionKindSettlementFailed  = "settlement_failed"
	ExceptionKindStuckClaim        = "stuck_settlement_claim"
)

// Exception is an operator-facing record of an order that needs attention.
// Settlement failures and rejected transitions land here so they can be listed
// alongside the reconciliation output.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrderID string `gorm:"size:36;index" json:"orderId"`
	Kind    string `gorm:"size:50;index" json:"kind"`
	Module  string `gorm:"size:100" json:"module"` // e.g. "settlement"

	Message string `gorm:"type:text" json:"message"`
	Reason  string `gorm:"type:text" json:"reason,omitempty"` // structured ledger reason, when present

	Level string `gorm:"size:20;index" json:"level"` // warn | error

	Context map[string]any `gorm:"serializer:json" json:"context,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

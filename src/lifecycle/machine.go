// Package lifecycle holds the order transition table and the guards that every
// tracker, sweeper and settlement path goes through before persisting a change.
package lifecycle

import (
	"strings"
	"time"

	"atcpay/src/model"
)

var transitions = map[string][]string{
	model.StatusAwaitingPayment:      {model.StatusAwaitingConfirmation, model.StatusExpired},
	model.StatusAwaitingConfirmation: {model.StatusConfirmed},
	model.StatusConfirmed:            {model.StatusSettled},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave status.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

// IsTracked reports whether a confirmation tracker still has work for status.
func IsTracked(status string) bool {
	return status == model.StatusAwaitingPayment || status == model.StatusAwaitingConfirmation
}

func reject(o *model.Order, to, reason string) error {
	return &TransitionError{OrderID: o.ID, From: o.Status, To: to, Reason: reason}
}

// ApplyPayment moves an order from awaiting_payment to awaiting_confirmation when obs
// pays at least totalPrice into the order's deposit address before expiration.
// The order is left untouched when a guard fails.
func ApplyPayment(o *model.Order, obs model.Observation, now time.Time) error {
	to := model.StatusAwaitingConfirmation
	if !CanTransition(o.Status, to) {
		return reject(o, to, "status does not accept payments")
	}
	if obs.Hash == "" {
		return reject(o, to, "payment without transaction hash")
	}
	if !strings.EqualFold(obs.To, o.WalletAddress) {
		return reject(o, to, "payment destination "+obs.To+" is not the deposit address")
	}
	if obs.Value.LessThan(o.TotalPrice) {
		return reject(o, to, "paid "+obs.Value.String()+" below total price "+o.TotalPrice.String())
	}
	if !now.Before(o.ExpirationDate) {
		return reject(o, to, "order expired")
	}

	o.Status = to
	o.TxHash = obs.Hash
	o.Transaction = model.NewChainTransaction(o.AcceptableCurrency, obs)
	o.PaymentBlockHeight = obs.BlockHeight
	if obs.Confirmations > o.Confirmations {
		o.Confirmations = obs.Confirmations
	}
	received := now
	o.TransactionReceivedAt = &received
	return nil
}

// ApplyConfirmations records a new confirmation count for the payment on record and
// confirms the order once the count reaches confirmationsNeeded. Counts lower than the
// one stored are ignored, so the stored count never decreases. It returns true when the
// order changed.
func ApplyConfirmations(o *model.Order, hash string, confirmations int64, now time.Time) (bool, error) {
	to := model.StatusConfirmed
	if o.Status != model.StatusAwaitingConfirmation {
		return false, reject(o, to, "status does not count confirmations")
	}
	if hash == "" || hash != o.TxHash {
		return false, reject(o, to, "confirmation for "+hash+" does not match payment "+o.TxHash)
	}
	changed := false
	if confirmations > o.Confirmations {
		o.Confirmations = confirmations
		changed = true
	}
	if o.Confirmations >= o.ConfirmationsNeeded {
		o.Status = to
		confirmed := now
		o.TransactionConfirmedAt = &confirmed
		changed = true
	}
	return changed, nil
}

// RecordPaymentBlock replaces the chain snapshot once the payment's block height is known.
func RecordPaymentBlock(o *model.Order, obs model.Observation) error {
	if o.Status != model.StatusAwaitingConfirmation || obs.Hash != o.TxHash {
		return reject(o, o.Status, "block height for "+obs.Hash+" does not match payment "+o.TxHash)
	}
	o.PaymentBlockHeight = obs.BlockHeight
	o.Transaction = model.NewChainTransaction(o.AcceptableCurrency, obs)
	return nil
}

// Expire moves an unpaid order past its expiration date to expired.
func Expire(o *model.Order, now time.Time) error {
	to := model.StatusExpired
	if !CanTransition(o.Status, to) {
		return reject(o, to, "only unpaid orders expire")
	}
	if now.Before(o.ExpirationDate) {
		return reject(o, to, "expiration date not reached")
	}

	o.Status = to
	expired := now
	o.ExpiredAt = &expired
	if o.UserID == "" {
		o.UserID = model.UnknownUserID
	}
	return nil
}

// Settle marks a confirmed order as paid out by the ledger transaction transactionID.
func Settle(o *model.Order, transactionID string, now time.Time) error {
	to := model.StatusSettled
	if !CanTransition(o.Status, to) {
		return reject(o, to, "only confirmed orders settle")
	}
	if transactionID == "" {
		return reject(o, to, "settlement without ledger transaction")
	}

	o.Status = to
	settled := now
	o.SettledAt = &settled
	o.AssetTransactionID = &transactionID
	return nil
}

package engine

import (
	"context"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/model"
)

// pollAccount drives an ether or token order: balance polling until the deposit address
// holds totalPrice, then slower polling of the explorer for the payment's confirmations.
func (t *Tracker) pollAccount(ctx context.Context, order *model.Order, observer AccountObserver) {
	id := order.ID
	interval := t.intervalFor(order.Status)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		current, err := t.orders.FindByID(ctx, id)
		if err != nil {
			logger.WithError(err).WithField("order_id", id).Warn("Failed to reload order, retrying next tick")
			timer.Reset(interval)
			continue
		}
		if current == nil {
			return
		}

		switch current.Status {
		case model.StatusAwaitingPayment:
			t.pollPayment(ctx, current, observer)
		case model.StatusAwaitingConfirmation:
			if t.pollConfirmations(ctx, current, observer) {
				return
			}
		default:
			return
		}

		interval = t.intervalFor(current.Status)
		timer.Reset(interval)
	}
}

func (t *Tracker) intervalFor(status string) time.Duration {
	if status == model.StatusAwaitingConfirmation {
		return t.confirmationPoll
	}
	return t.paymentPoll
}

func (t *Tracker) pollPayment(ctx context.Context, order *model.Order, observer AccountObserver) {
	log := logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"currency": order.AcceptableCurrency,
		"address":  order.WalletAddress,
	})

	balance, err := observer.Balance(ctx, order.WalletAddress)
	if err != nil {
		log.WithError(err).Warn("Balance query failed")
		return
	}
	if balance.LessThan(order.TotalPrice) {
		log.WithField("balance", balance.String()).Debug("Balance below total price")
		return
	}

	txs, err := observer.ListTransactions(ctx, order.WalletAddress)
	if err != nil {
		log.WithError(err).Warn("Explorer query failed")
		return
	}

	var match *model.Observation
	for i := range txs {
		if strings.EqualFold(txs[i].To, order.WalletAddress) && txs[i].Value.GreaterThanOrEqual(order.TotalPrice) {
			match = &txs[i]
			break
		}
	}
	if match == nil {
		log.WithField("balance", balance.String()).Info("Balance covers total price but no single transfer does")
		return
	}

	paid, moved := t.acceptPayment(ctx, order.ID, *match)
	if !moved {
		return
	}
	// The explorer may already report enough confirmations.
	t.advanceConfirmations(ctx, paid, paid.TxHash, paid.Confirmations)
	*order = *paid
}

// pollConfirmations returns true once the order is confirmed.
func (t *Tracker) pollConfirmations(ctx context.Context, order *model.Order, observer AccountObserver) bool {
	txs, err := observer.ListTransactions(ctx, order.WalletAddress)
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).Warn("Explorer query failed")
		return false
	}

	for _, tx := range txs {
		if tx.Hash == order.TxHash {
			return t.advanceConfirmations(ctx, order, tx.Hash, tx.Confirmations)
		}
	}

	logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"tx_hash":  order.TxHash,
	}).Warn("Payment missing from explorer listing")
	return false
}

package engine

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/lifecycle"
	"atcpay/src/model"
	"atcpay/src/repository"
)

// watchBitcoinAddress listens for payments to the order's deposit address until one is
// accepted. Confirmations are counted by the block feed, so an order already awaiting
// confirmation needs no per-order watch.
func (t *Tracker) watchBitcoinAddress(ctx context.Context, order *model.Order) {
	if order.Status != model.StatusAwaitingPayment {
		return
	}

	log := logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"address":  order.WalletAddress,
	})

	subCtx, unsubscribe := context.WithCancel(ctx)
	defer unsubscribe()

	backoff := t.minBackoff
	for {
		events, err := t.bitcoin.SubscribeAddress(subCtx, order.WalletAddress)
		if err != nil {
			log.WithError(err).Warn("Address subscription failed")
			if !sleepCtx(subCtx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, t.maxBackoff)
			continue
		}

		for obs := range events {
			// A delivering feed is healthy again.
			backoff = t.minBackoff
			if obs.Value.LessThan(order.TotalPrice) {
				log.WithFields(map[string]interface{}{
					"tx_hash": obs.Hash,
					"value":   obs.Value.String(),
				}).Warn("Payment below total price ignored")
				continue
			}

			current, moved := t.acceptPayment(subCtx, order.ID, obs)
			if moved || (current != nil && current.Status != model.StatusAwaitingPayment) {
				return
			}
		}

		// Channel closed: either ctx ended or the socket dropped.
		if subCtx.Err() != nil {
			return
		}
		log.WithField("retry_in", backoff.String()).Info("Address feed dropped, resubscribing")
		if !sleepCtx(subCtx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, t.maxBackoff)
	}
}

// RunBlockFeed follows new bitcoin blocks for the life of ctx, counting confirmations
// for every bitcoin order awaiting them. It reconnects with backoff when the feed drops.
func (t *Tracker) RunBlockFeed(ctx context.Context) {
	backoff := t.minBackoff
	for {
		blocks, err := t.bitcoin.SubscribeBlocks(ctx)
		if err != nil {
			logger.WithError(err).WithField("retry_in", backoff.String()).Warn("Block feed subscription failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, t.maxBackoff)
			continue
		}

		logger.Info("Block feed subscribed")
		for block := range blocks {
			backoff = t.minBackoff
			t.onBlock(ctx, block)
		}

		if ctx.Err() != nil {
			logger.Info("Block feed stopped")
			return
		}
		logger.WithField("retry_in", backoff.String()).Warn("Block feed dropped, reconnecting")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, t.maxBackoff)
	}
}

func (t *Tracker) onBlock(ctx context.Context, block model.Block) {
	log := logger.WithField("height", block.Height)

	orders, err := t.orders.Find(ctx, repository.OrderFilter{
		Statuses: []string{model.StatusAwaitingConfirmation},
		Currency: model.CurrencyBTC,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to list orders awaiting confirmation")
		return
	}

	for i := range orders {
		order := &orders[i]

		if order.PaymentBlockHeight == nil {
			obs, err := t.bitcoin.LookupTransaction(ctx, order.TxHash, order.WalletAddress)
			if err != nil {
				log.WithError(err).WithField("order_id", order.ID).Warn("Payment lookup failed")
				continue
			}
			if obs.BlockHeight == nil {
				// Still in the mempool.
				continue
			}
			if err := lifecycle.RecordPaymentBlock(order, *obs); err != nil {
				capture(ctx, t.exceptions, order.ID, model.ExceptionKindInvalidTransition, "tracker", "payment block rejected", err, nil)
				continue
			}
			saved, err := t.orders.SaveIfStatus(ctx, order, model.StatusAwaitingConfirmation)
			if err != nil || !saved {
				log.WithError(err).WithField("order_id", order.ID).Warn("Failed to persist payment block height")
				continue
			}
		}

		confirmations := block.Height - *order.PaymentBlockHeight + 1
		if confirmations < 1 {
			continue
		}
		t.advanceConfirmations(ctx, order, order.TxHash, confirmations)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit || next <= 0 {
		return limit
	}
	return next
}

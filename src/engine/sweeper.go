package engine

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/lifecycle"
	"atcpay/src/model"
	"atcpay/src/repository"
)

// Sweeper expires unpaid orders past their expiration date.
type Sweeper struct {
	orders OrderStore
}

func NewSweeper(orders OrderStore) *Sweeper {
	return &Sweeper{orders: orders}
}

// Sweep expires every awaiting_payment order whose expiration date is before now and
// returns how many it expired. The write re-checks the status, so an order paid between
// selection and write keeps its payment.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.orders.Find(ctx, repository.OrderFilter{
		Statuses:      []string{model.StatusAwaitingPayment},
		ExpiresBefore: &now,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range candidates {
		order := &candidates[i]
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		if err := lifecycle.Expire(order, now); err != nil {
			logger.WithError(err).WithField("order_id", order.ID).Warn("Order not expirable")
			continue
		}

		ok, err := s.orders.CompareAndSetStatus(ctx, order.ID, model.StatusAwaitingPayment, model.StatusExpired,
			map[string]interface{}{
				"expired_at": now,
				"user_id":    order.UserID,
			})
		if err != nil {
			logger.WithError(err).WithField("order_id", order.ID).Error("Failed to expire order")
			continue
		}
		if !ok {
			logger.WithField("order_id", order.ID).Info("Order left awaiting_payment before expiry, skipped")
			continue
		}
		expired++
	}

	logger.WithFields(map[string]interface{}{
		"op":         "Sweep",
		"candidates": len(candidates),
		"expired":    expired,
	}).Info("Expiry sweep finished")

	return expired, nil
}

// Sweep runs the expiry sweeper at now.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (int, error) {
	return e.Sweeper.Sweep(ctx, now)
}

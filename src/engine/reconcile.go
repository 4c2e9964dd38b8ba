package engine

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/model"
	"atcpay/src/repository"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Tracked     int      `json:"tracked"`
	Settled     int      `json:"settled"`
	Failed      int      `json:"failed"`
	StuckClaims []string `json:"stuckClaims,omitempty"`
}

// Reconcile re-derives in-flight work from the store: it re-attaches trackers to orders
// awaiting confirmation and to unexpired orders awaiting payment, and settles confirmed
// orders nobody holds a claim on. Confirmed orders whose claim is older than
// StuckClaimAfter are reported for an operator. Settlement failures are counted, not
// returned; the next pass retries them. Running it periodically also revives watches that
// reached the tracker ceiling.
func (e *Engine) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	now := e.now()

	unpaid, err := e.deps.Orders.Find(ctx, repository.OrderFilter{
		Statuses:     []string{model.StatusAwaitingPayment},
		ExpiresAfter: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("list unpaid orders: %w", err)
	}
	paid, err := e.deps.Orders.Find(ctx, repository.OrderFilter{
		Statuses: []string{model.StatusAwaitingConfirmation},
	})
	if err != nil {
		return nil, fmt.Errorf("list paid orders: %w", err)
	}
	for _, order := range append(unpaid, paid...) {
		if e.Tracker.IsTracking(order.ID) {
			continue
		}
		if err := e.Tracker.Track(ctx, order.ID); err != nil {
			logger.WithError(err).WithField("order_id", order.ID).Error("Failed to re-attach tracker")
			continue
		}
		report.Tracked++
	}

	unclaimed := false
	confirmed, err := e.deps.Orders.Find(ctx, repository.OrderFilter{
		Statuses: []string{model.StatusConfirmed},
		Claimed:  &unclaimed,
	})
	if err != nil {
		return report, fmt.Errorf("list confirmed orders: %w", err)
	}
	for i := range confirmed {
		order := &confirmed[i]
		_, err := e.Settlement.Settle(ctx, order)
		switch {
		case err == nil:
			report.Settled++
		case errors.Is(err, ErrAlreadySettled):
		default:
			report.Failed++
			logger.WithError(err).WithField("order_id", order.ID).Error("Reconciliation settlement failed")
		}
	}

	claimed := true
	stuck, err := e.deps.Orders.Find(ctx, repository.OrderFilter{
		Statuses: []string{model.StatusConfirmed},
		Claimed:  &claimed,
	})
	if err != nil {
		return report, fmt.Errorf("list claimed orders: %w", err)
	}
	for _, order := range stuck {
		if order.SettlementClaimedAt != nil && now.Sub(*order.SettlementClaimedAt) < e.cfg.StuckClaimAfter {
			continue
		}
		report.StuckClaims = append(report.StuckClaims, order.ID)

		var claimedAt interface{}
		if order.SettlementClaimedAt != nil {
			claimedAt = *order.SettlementClaimedAt
		}
		capture(ctx, e.deps.Exceptions, order.ID, model.ExceptionKindStuckClaim, "reconcile", order.LastSettlementError,
			errors.New("settlement claim held by an earlier process"),
			map[string]interface{}{"claimed_at": claimedAt})
	}

	logger.WithFields(map[string]interface{}{
		"op":           "Reconcile",
		"tracked":      report.Tracked,
		"settled":      report.Settled,
		"failed":       report.Failed,
		"stuck_claims": len(report.StuckClaims),
	}).Info("Reconciliation finished")

	return report, nil
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atcpay/src/model"
)

func TestReconcile(t *testing.T) {
	now := time.Now()
	claim := "claim-from-crashed-process"
	claimedAt := now.Add(-time.Hour)

	stuck := confirmedOrder("stuck")
	stuck.SettlementClaim = &claim
	stuck.SettlementClaimedAt = &claimedAt

	h := newHarness(testConfig(),
		testOrder("live-payment", model.CurrencyBTC, model.StatusAwaitingPayment, decimal.NewFromInt(1), now.Add(time.Hour)),
		testOrder("live-confirm", model.CurrencyETH, model.StatusAwaitingConfirmation, decimal.NewFromInt(1), now.Add(time.Hour)),
		testOrder("stale", model.CurrencyBTC, model.StatusAwaitingPayment, decimal.NewFromInt(1), now.Add(-time.Minute)),
		confirmedOrder("unsettled"),
		stuck,
	)
	defer h.engine.Close()

	report, err := h.engine.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Tracked)
	assert.Equal(t, 1, report.Settled)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{"stuck"}, report.StuckClaims)

	assert.True(t, h.engine.Tracker.IsTracking("live-payment"))
	assert.True(t, h.engine.Tracker.IsTracking("live-confirm"))
	assert.False(t, h.engine.Tracker.IsTracking("stale"))

	assert.Equal(t, model.StatusSettled, h.orders.get("unsettled").Status)
	assert.Equal(t, model.StatusConfirmed, h.orders.get("stuck").Status)
	assert.Equal(t, 1, h.ledger.paymentCount())
	assert.Contains(t, h.exceptions.kinds(), model.ExceptionKindStuckClaim)
}

func TestReconcileCountsSettlementFailures(t *testing.T) {
	h := newHarness(testConfig(), confirmedOrder("a"), confirmedOrder("b"))
	defer h.engine.Close()

	h.ledger.submitErr = errLedgerRejected()

	report, err := h.engine.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Settled)
	assert.Empty(t, report.StuckClaims)
}

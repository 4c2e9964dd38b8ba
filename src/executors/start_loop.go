package executors

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/engine"
)

// Maintainer is the part of the engine the periodic jobs drive.
type Maintainer interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
	Reconcile(ctx context.Context) (*engine.ReconcileReport, error)
}

var (
	sweepOnce = func(ctx context.Context, m Maintainer) error {
		expired, err := m.Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		if expired > 0 {
			logger.WithField("expired", expired).Info("Expired unpaid orders")
		}
		return nil
	}

	reconcileOnce = func(ctx context.Context, m Maintainer) error {
		report, err := m.Reconcile(ctx)
		if err != nil {
			return err
		}
		entry := logger.WithFields(map[string]interface{}{
			"tracked": report.Tracked,
			"settled": report.Settled,
			"failed":  report.Failed,
		})
		if len(report.StuckClaims) > 0 {
			entry.WithField("stuck_claims", report.StuckClaims).Warn("Settlement claims need an operator")
			return nil
		}
		entry.Debug("Reconcile pass done")
		return nil
	}
)

// StartLoop runs tick every period until ctx is done. A failing tick is logged and the
// loop carries on.
func StartLoop(ctx context.Context, name string, period time.Duration, tick func(ctx context.Context) error) {
	ticker := time.NewTicker(period) // Set up a ticker that fires periodically
	defer ticker.Stop()

	log := logger.WithField("loop", name)
	for {
		select {
		case <-ctx.Done():
			log.Info("loop stopped")
			return

		case <-ticker.C:
			log.Debug("loop tick")
			if err := tick(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("loop tick failed")
			}
		}
	}
}

// RunMaintenance runs the expiry sweep and the reconciliation pass on their configured
// periods and blocks until ctx is done.
func RunMaintenance(ctx context.Context, cfg Config, m Maintainer) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		StartLoop(ctx, "sweep", cfg.SweepPeriod, func(ctx context.Context) error {
			return sweepOnce(ctx, m)
		})
	}()
	go func() {
		defer wg.Done()
		StartLoop(ctx, "reconcile", cfg.ReconcilePeriod, func(ctx context.Context) error {
			return reconcileOnce(ctx, m)
		})
	}()
	wg.Wait()
}

// SweepNow runs a single expiry sweep.
func SweepNow(ctx context.Context, m Maintainer) error {
	return sweepOnce(ctx, m)
}

// ReconcileNow runs a single reconciliation pass.
func ReconcileNow(ctx context.Context, m Maintainer) error {
	return reconcileOnce(ctx, m)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"atcpay/src/auth"
	"atcpay/src/executors"
	"atcpay/src/repository"
	"atcpay/src/server"
)

type Service struct{}

// Start runs the whole payment service: reconciliation, the bitcoin block feed, the
// maintenance loops and the HTTP API, until SIGINT or SIGTERM.
func (s *Service) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := openDatabases(); err != nil {
		return err
	}

	e, closeEngine, err := buildEngine(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to build engine")
		return err
	}
	defer closeEngine()

	if config.ReconcileOnStart {
		if err := executors.ReconcileNow(ctx, e); err != nil {
			logrus.WithError(err).Error("Startup reconciliation failed")
			return err
		}
	}

	// Background work runs under its own context so it is cancelled before the engine
	// closes its trackers and ledger writers.
	bgCtx, cancelBg := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancelBg()
		wg.Wait()
	}()

	if config.BlockFeed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Tracker.RunBlockFeed(bgCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		executors.RunMaintenance(bgCtx, executors.GetConfig(), e)
	}()

	router := server.NewRouter(e, auth.GetConfig().JWTKey)
	return server.Serve(ctx, server.GetConfig(), router)
}

// Sweep expires overdue unpaid orders once.
func (s *Service) Sweep() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := openDatabases(); err != nil {
		return err
	}
	e, closeEngine, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine()

	return executors.SweepNow(ctx, e)
}

// Reconcile settles confirmed orders nobody holds a claim on and reports stuck claims.
func (s *Service) Reconcile() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := openDatabases(); err != nil {
		return err
	}
	e, closeEngine, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine()

	return executors.ReconcileNow(ctx, e)
}

// ReleaseClaim clears the settlement claim on a confirmed order so the next reconcile pass
// pays it. Only run it after checking the ledger for an existing payment.
func (s *Service) ReleaseClaim(orderID string) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	if err := openDatabases(); err != nil {
		return err
	}

	released, err := repository.NewOrderRepository().ForceReleaseSettlement(context.Background(), orderID)
	if err != nil {
		return err
	}
	if !released {
		return fmt.Errorf("order %s is not confirmed with a claim", orderID)
	}
	return nil
}

// IssueToken mints a bearer token for an API client.
func (s *Service) IssueToken(callerID string) (string, error) {
	if callerID == "" {
		return "", errors.New("caller id is required")
	}
	cfg := auth.GetConfig()
	return auth.IssueToken(cfg.JWTKey, callerID, cfg.TokenTTL)
}

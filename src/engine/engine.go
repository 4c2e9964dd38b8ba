// Package engine drives orders from payment to settlement: confirmation trackers,
// the bitcoin block feed, the expiry sweeper, settlement and startup reconciliation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/model"
)

// Deps are the collaborators the engine drives. Reads defaults to Orders.
type Deps struct {
	Orders       OrderStore
	Reads        OrderReader
	Transactions TransactionStore
	Wallets      WalletStore
	Exceptions   ExceptionRecorder
	Ledger       LedgerClient
	Bitcoin      BitcoinFeed
	Ether        AccountObserver
	Tether       AccountObserver
	Prices       PriceQuoter
	Keys         DepositKeyGenerator
	Sealer       SecretSealer
}

type Engine struct {
	cfg   Config
	deps  Deps
	reads OrderReader
	queue *accountQueue
	now   func() time.Time

	Tracker    *Tracker
	Settlement *SettlementCoordinator
	Sweeper    *Sweeper
	Wallets    *WalletResolver
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Orders == nil {
		return nil, errors.New("engine: order store is required")
	}

	reads := deps.Reads
	if reads == nil {
		if r, ok := deps.Orders.(OrderReader); ok {
			reads = r
		} else {
			return nil, errors.New("engine: no order reader")
		}
	}

	queue := newAccountQueue()
	resolver := NewWalletResolver(cfg, deps.Wallets, deps.Ledger, deps.Sealer, queue)
	settlement := NewSettlementCoordinator(cfg, deps.Orders, resolver, deps.Ledger, deps.Exceptions, queue)

	e := &Engine{
		cfg:        cfg,
		deps:       deps,
		reads:      reads,
		queue:      queue,
		now:        time.Now,
		Settlement: settlement,
		Sweeper:    NewSweeper(deps.Orders),
		Wallets:    resolver,
	}

	observers := map[string]AccountObserver{}
	if deps.Ether != nil {
		observers[model.CurrencyETH] = deps.Ether
	}
	if deps.Tether != nil {
		observers[model.CurrencyUSDT] = deps.Tether
	}

	tracker, err := NewTracker(cfg, deps.Orders, deps.Bitcoin, observers, deps.Exceptions, e.settle)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.Tracker = tracker

	return e, nil
}

// settle is the tracker's hand-off once an order is confirmed.
func (e *Engine) settle(ctx context.Context, order *model.Order) {
	if _, err := e.Settlement.Settle(ctx, order); err != nil && !errors.Is(err, ErrAlreadySettled) {
		logger.WithError(err).
			WithField("order_id", order.ID).
			Error("Settlement failed, order left confirmed")
	}
}

// Close stops trackers and ledger writers. Run the block feed under a context cancelled
// before Close.
func (e *Engine) Close() {
	e.Tracker.Stop()
	e.queue.Close()
}

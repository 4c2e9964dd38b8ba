package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	logger "github.com/sirupsen/logrus"

	"atcpay/src/lifecycle"
	"atcpay/src/model"
)

var ErrTrackerStopped = errors.New("tracker stopped")

// Tracker supervises one watch task per order, keyed by order id, on a bounded pool.
// Every watch ends when its order leaves the tracked states or after the ceiling.
type Tracker struct {
	orders     OrderStore
	bitcoin    BitcoinFeed
	observers  map[string]AccountObserver
	exceptions ExceptionRecorder
	settle     func(ctx context.Context, order *model.Order)

	pool             *ants.Pool
	paymentPoll      time.Duration
	confirmationPoll time.Duration
	ceiling          time.Duration
	minBackoff       time.Duration
	maxBackoff       time.Duration
	now              func() time.Time

	mu     sync.Mutex
	active map[string]context.CancelFunc
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTracker(
	cfg Config,
	orders OrderStore,
	bitcoin BitcoinFeed,
	observers map[string]AccountObserver,
	exceptions ExceptionRecorder,
	settle func(ctx context.Context, order *model.Order),
) (*Tracker, error) {

	pool, err := ants.NewPool(cfg.TrackerPoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("tracker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		orders:           orders,
		bitcoin:          bitcoin,
		observers:        observers,
		exceptions:       exceptions,
		settle:           settle,
		pool:             pool,
		paymentPoll:      cfg.PaymentPoll,
		confirmationPoll: cfg.ConfirmationPoll,
		ceiling:          cfg.TrackerCeiling,
		minBackoff:       cfg.BlockFeedMinBackoff,
		maxBackoff:       cfg.BlockFeedMaxBackoff,
		now:              time.Now,
		active:           make(map[string]context.CancelFunc),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Track starts watching order id unless a watch already runs for it. Orders past the
// tracked states are ignored without touching any chain observer.
func (t *Tracker) Track(ctx context.Context, id string) error {
	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return ErrTrackerStopped
	}
	if _, ok := t.active[id]; ok {
		t.mu.Unlock()
		return nil
	}
	t.active[id] = nil
	t.mu.Unlock()

	order, err := t.orders.FindByID(ctx, id)
	if err != nil {
		t.forget(id)
		return err
	}
	if order == nil {
		t.forget(id)
		return ErrOrderNotFound
	}
	if !lifecycle.IsTracked(order.Status) {
		t.forget(id)
		logger.WithFields(map[string]interface{}{
			"order_id": id,
			"status":   order.Status,
		}).Debug("Order not in a tracked state, nothing to watch")
		return nil
	}

	taskCtx, cancel := context.WithTimeout(t.ctx, t.ceiling)
	// Stop cancels under mu, so a watch counted here is always waited for.
	t.mu.Lock()
	if t.ctx.Err() != nil {
		delete(t.active, id)
		t.mu.Unlock()
		cancel()
		return ErrTrackerStopped
	}
	t.active[id] = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	err = t.pool.Submit(func() {
		defer t.wg.Done()
		defer t.forget(id)
		defer cancel()
		t.watch(taskCtx, order)
	})
	if err != nil {
		t.wg.Done()
		cancel()
		t.forget(id)
		return fmt.Errorf("schedule tracker for order %s: %w", id, err)
	}

	logger.WithFields(map[string]interface{}{
		"order_id": id,
		"currency": order.AcceptableCurrency,
		"status":   order.Status,
	}).Info("Tracker started")

	return nil
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	delete(t.active, id)
	t.mu.Unlock()
}

// IsTracking reports whether a watch task currently runs for id.
func (t *Tracker) IsTracking(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[id]
	return ok
}

// Stop cancels every watch and waits for them to return.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
	t.pool.Release()
}

func (t *Tracker) watch(ctx context.Context, order *model.Order) {
	log := logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"currency": order.AcceptableCurrency,
	})

	switch order.AcceptableCurrency {
	case model.CurrencyBTC:
		t.watchBitcoinAddress(ctx, order)
	case model.CurrencyETH, model.CurrencyUSDT:
		observer, ok := t.observers[order.AcceptableCurrency]
		if !ok {
			log.Error("No observer configured for currency")
			return
		}
		t.pollAccount(ctx, order, observer)
	default:
		log.Error("Unsupported currency, order cannot be tracked")
		return
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Info("Tracker ceiling reached, watch stopped")
	}
}

// dispatchSettlement hands a freshly confirmed order to settlement on the pool, outside
// the watch's lifetime. Stop waits for it rather than cancelling a submission mid-flight.
func (t *Tracker) dispatchSettlement(order *model.Order) {
	if t.settle == nil {
		return
	}
	confirmed := *order
	t.wg.Add(1)
	err := t.pool.Submit(func() {
		defer t.wg.Done()
		t.settle(context.WithoutCancel(t.ctx), &confirmed)
	})
	if err != nil {
		t.wg.Done()
		logger.WithError(err).
			WithField("order_id", order.ID).
			Error("Failed to schedule settlement, left for reconciliation")
	}
}

// acceptPayment runs the payment guard on a fresh copy of order id. It returns the
// persisted order when this call moved it to awaiting_confirmation.
func (t *Tracker) acceptPayment(ctx context.Context, id string, obs model.Observation) (*model.Order, bool) {
	order, err := t.orders.FindByID(ctx, id)
	if err != nil {
		logger.WithError(err).WithField("order_id", id).Warn("Failed to reload order")
		return nil, false
	}
	if order == nil || order.Status != model.StatusAwaitingPayment {
		return order, false
	}

	log := logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"currency": order.AcceptableCurrency,
		"tx_hash":  obs.Hash,
		"value":    obs.Value.String(),
	})

	if err := lifecycle.ApplyPayment(order, obs, t.now()); err != nil {
		log.WithError(err).Warn("Payment rejected")
		capture(ctx, t.exceptions, id, model.ExceptionKindInvalidTransition, "tracker", "payment rejected", err,
			map[string]interface{}{"tx_hash": obs.Hash, "value": obs.Value.String()})
		return order, false
	}

	saved, err := t.orders.SaveIfStatus(ctx, order, model.StatusAwaitingPayment)
	if err != nil {
		log.WithError(err).Error("Failed to persist payment")
		return nil, false
	}
	if !saved {
		log.Info("Order moved by another writer, payment not applied")
		return nil, false
	}

	log.Info("Payment received, awaiting confirmations")
	return order, true
}

// advanceConfirmations runs the confirmation guard and persists any change. It returns
// true once the order is confirmed.
func (t *Tracker) advanceConfirmations(ctx context.Context, order *model.Order, hash string, confirmations int64) bool {
	log := logger.WithFields(map[string]interface{}{
		"order_id":      order.ID,
		"currency":      order.AcceptableCurrency,
		"tx_hash":       hash,
		"confirmations": confirmations,
	})

	changed, err := lifecycle.ApplyConfirmations(order, hash, confirmations, t.now())
	if err != nil {
		log.WithError(err).Warn("Confirmation rejected")
		capture(ctx, t.exceptions, order.ID, model.ExceptionKindInvalidTransition, "tracker", "confirmation rejected", err,
			map[string]interface{}{"tx_hash": hash, "confirmations": confirmations})
		return false
	}
	if !changed {
		return false
	}

	saved, err := t.orders.SaveIfStatus(ctx, order, model.StatusAwaitingConfirmation)
	if err != nil {
		log.WithError(err).Error("Failed to persist confirmations")
		return false
	}
	if !saved {
		log.Info("Order moved by another writer, confirmations not applied")
		return false
	}

	if order.Status != model.StatusConfirmed {
		log.Debug("Confirmations updated")
		return false
	}

	log.Info("Payment confirmed")
	t.dispatchSettlement(order)
	return true
}

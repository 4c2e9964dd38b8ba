package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"atcpay/src/connectors"
	"atcpay/src/model"
)

// SettlementCoordinator pays the purchased asset out to the buyer's holding wallet,
// at most once per order.
type SettlementCoordinator struct {
	cfg        Config
	orders     OrderStore
	resolver   *WalletResolver
	ledger     LedgerClient
	exceptions ExceptionRecorder
	queue      *accountQueue
	now        func() time.Time
}

func NewSettlementCoordinator(
	cfg Config,
	orders OrderStore,
	resolver *WalletResolver,
	ledger LedgerClient,
	exceptions ExceptionRecorder,
	queue *accountQueue,
) *SettlementCoordinator {
	return &SettlementCoordinator{
		cfg:        cfg,
		orders:     orders,
		resolver:   resolver,
		ledger:     ledger,
		exceptions: exceptions,
		queue:      queue,
		now:        time.Now,
	}
}

// Settle claims order, pays it out and marks it settled. Callers that lose the claim get
// ErrAlreadySettled. A failed attempt releases the claim when the ledger certainly did
// not apply the payment, leaving the order confirmed for the next reconciliation.
func (s *SettlementCoordinator) Settle(ctx context.Context, order *model.Order) (*model.Transaction, error) {
	log := logger.WithFields(map[string]interface{}{
		"op":       "Settle",
		"order_id": order.ID,
		"user_id":  order.UserID,
		"amount":   order.Amount.String(),
	})

	claim := uuid.NewString()
	won, err := s.orders.ClaimSettlement(ctx, order.ID, claim, s.now())
	if err != nil {
		log.WithError(err).Error("Failed to claim settlement")
		return nil, err
	}
	if !won {
		log.Debug("Settlement claim lost, skipping")
		return nil, ErrAlreadySettled
	}

	if order.UserID == "" {
		err := fmt.Errorf("%w: order has no owner", ErrWalletResolutionFailed)
		s.release(ctx, order, claim, "order has no owner", err)
		return nil, err
	}

	wallet, err := s.resolver.ResolveOrCreateHoldingWallet(ctx, order.UserID)
	if err != nil {
		s.release(ctx, order, claim, "wallet resolution failed", err)
		return nil, err
	}

	var result *connectors.PaymentResult
	err = s.queue.Do(ctx, s.cfg.DistributorAccount, func(ctx context.Context) error {
		var submitErr error
		result, submitErr = s.ledger.SubmitPayment(ctx, connectors.PaymentRequest{
			Source:      s.cfg.DistributorAccount,
			Signers:     []string{s.cfg.DistributorSecret},
			Destination: wallet.PublicKey,
			AssetCode:   s.cfg.AssetCode,
			AssetIssuer: s.cfg.AssetIssuer,
			Amount:      order.Amount,
		})
		return submitErr
	})
	if err != nil {
		subErr := &LedgerSubmissionError{OrderID: order.ID, Err: err}

		var lerr *connectors.LedgerError
		if errors.As(err, &lerr) {
			subErr.Reason = lerr.Reason()
			s.release(ctx, order, claim, subErr.Reason, subErr)
			return nil, subErr
		}
		if errors.Is(err, ErrNotSubmitted) {
			subErr.Reason = "not submitted"
			s.release(ctx, order, claim, subErr.Reason, subErr)
			return nil, subErr
		}

		// No verdict from the ledger: the payment may have been applied, so the claim stays
		// held until an operator checks the ledger and runs release-claim.
		subErr.Reason = "outcome unknown"
		capture(ctx, s.exceptions, order.ID, model.ExceptionKindSettlementFailed, "settlement", subErr.Reason, subErr,
			map[string]interface{}{"claim": claim, "wallet": wallet.PublicKey})
		return nil, subErr
	}

	orderID := order.ID
	record := &model.Transaction{
		ID:      uuid.NewString(),
		Type:    model.TransactionTypeStakingBuy,
		UserID:  order.UserID,
		OrderID: &orderID,
		Wallet:  wallet.PublicKey,
		Extra: map[string]any{
			"transactionResult": result.Raw,
			"hash":              result.Hash,
			"ledger":            result.Ledger,
			"wallet":            wallet.PublicKey,
			"amount":            order.Amount.String(),
		},
	}

	settledAt := s.now()
	if err := s.orders.CompleteSettlement(ctx, order.ID, claim, record, settledAt); err != nil {
		// Paid but not recorded. Keep the claim so no retry pays twice.
		capture(ctx, s.exceptions, order.ID, model.ExceptionKindSettlementFailed, "settlement",
			"payment applied but not recorded", err,
			map[string]interface{}{"claim": claim, "hash": result.Hash, "wallet": wallet.PublicKey})
		return nil, err
	}

	order.Status = model.StatusSettled
	order.SettledAt = &settledAt
	order.AssetTransactionID = &record.ID

	log.WithFields(map[string]interface{}{
		"wallet": wallet.PublicKey,
		"hash":   result.Hash,
	}).Info("Asset transferred")

	return record, nil
}

func (s *SettlementCoordinator) release(ctx context.Context, order *model.Order, claim, reason string, cause error) {
	capture(ctx, s.exceptions, order.ID, model.ExceptionKindSettlementFailed, "settlement", reason, cause,
		map[string]interface{}{"claim": claim})

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.orders.ReleaseSettlement(releaseCtx, order.ID, claim, reason); err != nil {
		logger.WithError(err).
			WithField("order_id", order.ID).
			Error("Failed to release settlement claim")
	}
}

// SettleByID loads id and settles it when it is confirmed.
func (s *SettlementCoordinator) SettleByID(ctx context.Context, id string) (*model.Transaction, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != model.StatusConfirmed {
		return nil, ErrAlreadySettled
	}
	return s.Settle(ctx, order)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/validator.v2"

	"atcpay/src/connectors"
	"atcpay/src/model"
)

type WithdrawRequest struct {
	UserID      string          `json:"-" validate:"nonzero"`
	PublicKey   string          `json:"-" validate:"nonzero"`
	Destination string          `json:"destination" validate:"nonzero,max=100"`
	Amount      decimal.Decimal `json:"amount"`
}

// WalletBalance is a holding wallet with its current asset balance.
type WalletBalance struct {
	PublicKey string          `json:"publicKey"`
	Balance   decimal.Decimal `json:"balance"`
}

// Withdraw pays amount of the asset out of the user's holding wallet to destination and
// charges the withdrawal fee back to the funding account. Both payments go through the
// funding account's writer.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (*model.Transaction, error) {
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	wallet, err := e.deps.Wallets.FindByPublicKey(ctx, req.UserID, req.PublicKey)
	if err != nil {
		return nil, err
	}
	if wallet == nil || wallet.AssetCode != e.cfg.AssetCode {
		return nil, ErrWalletNotFound
	}

	account, err := e.deps.Ledger.LoadAccount(ctx, wallet.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("load source wallet: %w", err)
	}
	fee := e.cfg.WithdrawFee
	total := req.Amount.Add(fee)
	balance := account.BalanceOf(e.cfg.AssetCode, e.cfg.AssetIssuer)
	if balance.LessThan(total) {
		return nil, fmt.Errorf("%w: balance %s, needed %s", ErrInsufficientBalance, balance, total)
	}

	secret, err := e.deps.Sealer.DecryptString(wallet.Secret)
	if err != nil {
		return nil, fmt.Errorf("unseal wallet secret: %w", err)
	}

	var payment *connectors.PaymentResult
	var feeErr error
	err = e.queue.Do(ctx, e.cfg.FundingAccount, func(ctx context.Context) error {
		signers := []string{e.cfg.FundingSecret, secret}

		var err error
		payment, err = e.deps.Ledger.SubmitPayment(ctx, connectors.PaymentRequest{
			Source:          e.cfg.FundingAccount,
			Signers:         signers,
			OperationSource: wallet.PublicKey,
			Destination:     req.Destination,
			AssetCode:       e.cfg.AssetCode,
			AssetIssuer:     e.cfg.AssetIssuer,
			Amount:          req.Amount,
		})
		if err != nil {
			return err
		}

		_, feeErr = e.deps.Ledger.SubmitPayment(ctx, connectors.PaymentRequest{
			Source:          e.cfg.FundingAccount,
			Signers:         signers,
			OperationSource: wallet.PublicKey,
			Destination:     e.cfg.FundingAccount,
			AssetCode:       e.cfg.AssetCode,
			AssetIssuer:     e.cfg.AssetIssuer,
			Amount:          fee,
		})
		return nil
	})
	if err != nil {
		return nil, &LedgerSubmissionError{Reason: ledgerReason(err), Err: err}
	}

	extra := map[string]any{
		"transaction": payment.Raw,
		"asset": map[string]string{
			"code":   e.cfg.AssetCode,
			"issuer": e.cfg.AssetIssuer,
		},
		"amount":            req.Amount.String(),
		"fee":               fee.String(),
		"totalAmount":       total.String(),
		"sourceWallet":      wallet.PublicKey,
		"destinationWallet": req.Destination,
	}
	if feeErr != nil {
		extra["feeError"] = feeErr.Error()
		logger.WithError(feeErr).WithFields(map[string]interface{}{
			"user_id": req.UserID,
			"wallet":  wallet.PublicKey,
		}).Error("Withdrawal fee payment failed")
	}

	record := &model.Transaction{
		ID:        uuid.NewString(),
		Type:      model.TransactionTypeWithdraw,
		UserID:    req.UserID,
		Wallet:    wallet.PublicKey,
		Extra:     extra,
		CreatedAt: time.Now(),
	}
	if err := e.deps.Transactions.Create(ctx, record); err != nil {
		// The payment is on the ledger; the audit record is all that is missing.
		logger.WithError(err).WithFields(map[string]interface{}{
			"user_id": req.UserID,
			"hash":    payment.Hash,
		}).Error("Failed to record withdrawal")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"user_id":     req.UserID,
		"wallet":      wallet.PublicKey,
		"destination": req.Destination,
		"amount":      req.Amount.String(),
		"hash":        payment.Hash,
	}).Info("Withdrawal submitted")

	return record, nil
}

func ledgerReason(err error) string {
	var lerr *connectors.LedgerError
	if errors.As(err, &lerr) {
		return lerr.Reason()
	}
	return ""
}

// WithdrawHistory lists a wallet's withdrawals, newest first.
func (e *Engine) WithdrawHistory(ctx context.Context, userID, publicKey string) ([]model.Transaction, error) {
	return e.deps.Transactions.FindWithdrawals(ctx, userID, publicKey)
}

// WalletBalances returns each of the user's wallets of walletType with its ledger balance.
// A wallet the ledger cannot load reports a zero balance.
func (e *Engine) WalletBalances(ctx context.Context, userID, walletType string) ([]WalletBalance, error) {
	wallets, err := e.deps.Wallets.FindByUser(ctx, userID, walletType)
	if err != nil {
		return nil, err
	}

	out := make([]WalletBalance, 0, len(wallets))
	for _, w := range wallets {
		if w.AssetCode != e.cfg.AssetCode {
			continue
		}
		balance := decimal.Zero
		account, err := e.deps.Ledger.LoadAccount(ctx, w.PublicKey)
		if err != nil {
			logger.WithError(err).WithField("public_key", w.PublicKey).Warn("Failed to load wallet balance")
		} else {
			balance = account.BalanceOf(e.cfg.AssetCode, e.cfg.AssetIssuer)
		}
		out = append(out, WalletBalance{PublicKey: w.PublicKey, Balance: balance})
	}
	return out, nil
}

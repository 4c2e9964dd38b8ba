package engine

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/model"
)

// WalletResolver finds or lazily creates users' holding wallets on the ledger.
type WalletResolver struct {
	cfg     Config
	wallets WalletStore
	ledger  LedgerClient
	sealer  SecretSealer
	queue   *accountQueue
}

func NewWalletResolver(cfg Config, wallets WalletStore, ledger LedgerClient, sealer SecretSealer, queue *accountQueue) *WalletResolver {
	return &WalletResolver{cfg: cfg, wallets: wallets, ledger: ledger, sealer: sealer, queue: queue}
}

// ResolveOrCreateHoldingWallet returns the user's staking wallet for the asset, creating
// and funding a new ledger account when the user has none.
func (r *WalletResolver) ResolveOrCreateHoldingWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	wallet, err := r.wallets.FindByOwner(ctx, userID, model.WalletTypeStaking, r.cfg.AssetCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWalletResolutionFailed, err)
	}
	if wallet != nil {
		return wallet, nil
	}

	err = r.queue.Do(ctx, r.cfg.FundingAccount, func(ctx context.Context) error {
		// Another job on this queue may have created it while we waited.
		existing, err := r.wallets.FindByOwner(ctx, userID, model.WalletTypeStaking, r.cfg.AssetCode)
		if err != nil {
			return err
		}
		if existing != nil {
			wallet = existing
			return nil
		}

		created, err := r.ledger.CreateAccount(
			ctx,
			r.cfg.FundingAccount,
			[]string{r.cfg.FundingSecret},
			r.cfg.StartingBalance,
			r.cfg.AssetCode,
			r.cfg.AssetIssuer,
		)
		if err != nil {
			return err
		}

		sealed, err := r.sealer.EncryptString(created.Secret)
		if err != nil {
			return err
		}

		candidate := &model.Wallet{
			UserID:          userID,
			Type:            model.WalletTypeStaking,
			AssetCode:       r.cfg.AssetCode,
			AssetIssuer:     r.cfg.AssetIssuer,
			PublicKey:       created.PublicKey,
			Secret:          sealed,
			StartingBalance: r.cfg.StartingBalance,
			FundingAccount:  r.cfg.FundingAccount,
		}
		inserted, err := r.wallets.CreateIfAbsent(ctx, candidate)
		if err != nil {
			return err
		}
		if !inserted {
			logger.WithFields(map[string]interface{}{
				"user_id":    userID,
				"public_key": created.PublicKey,
			}).Warn("Holding wallet created concurrently, new ledger account left unused")

			existing, err = r.wallets.FindByOwner(ctx, userID, model.WalletTypeStaking, r.cfg.AssetCode)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("wallet for user %s vanished", userID)
			}
			wallet = existing
			return nil
		}

		logger.WithFields(map[string]interface{}{
			"user_id":    userID,
			"public_key": created.PublicKey,
		}).Info("Holding wallet created")

		wallet = candidate
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWalletResolutionFailed, err)
	}
	return wallet, nil
}

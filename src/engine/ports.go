package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"atcpay/src/connectors"
	"atcpay/src/model"
	"atcpay/src/repository"
)

// OrderStore is the only channel through which engine tasks share order state.
type OrderStore interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	Find(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error)
	SaveIfStatus(ctx context.Context, order *model.Order, expected string) (bool, error)
	CompareAndSetStatus(ctx context.Context, id, expected, next string, changes map[string]interface{}) (bool, error)
	ClaimSettlement(ctx context.Context, id, claim string, at time.Time) (bool, error)
	CompleteSettlement(ctx context.Context, id, claim string, record *model.Transaction, at time.Time) error
	ReleaseSettlement(ctx context.Context, id, claim, reason string) error
}

type TransactionStore interface {
	Create(ctx context.Context, record *model.Transaction) error
	FindWithdrawals(ctx context.Context, userID, wallet string) ([]model.Transaction, error)
}

type WalletStore interface {
	FindByOwner(ctx context.Context, userID, walletType, assetCode string) (*model.Wallet, error)
	FindByPublicKey(ctx context.Context, userID, publicKey string) (*model.Wallet, error)
	FindByUser(ctx context.Context, userID, walletType string) ([]model.Wallet, error)
	CreateIfAbsent(ctx context.Context, wallet *model.Wallet) (bool, error)
}

type ExceptionRecorder interface {
	Create(ctx context.Context, exc *model.Exception) error
}

type LedgerClient interface {
	LoadAccount(ctx context.Context, id string) (*connectors.Account, error)
	SubmitPayment(ctx context.Context, req connectors.PaymentRequest) (*connectors.PaymentResult, error)
	CreateAccount(
		ctx context.Context,
		funder string,
		signers []string,
		startingBalance decimal.Decimal,
		assetCode, assetIssuer string,
	) (*connectors.CreatedAccount, error)
}

// BitcoinFeed is the push side of the bitcoin observer.
type BitcoinFeed interface {
	SubscribeBlocks(ctx context.Context) (<-chan model.Block, error)
	SubscribeAddress(ctx context.Context, address string) (<-chan model.Observation, error)
	LookupTransaction(ctx context.Context, hash, address string) (*model.Observation, error)
}

// AccountObserver is the pull side used for ether and token deposits.
type AccountObserver interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, address string) ([]model.Observation, error)
}

type PriceQuoter interface {
	QuoteUSD(ctx context.Context, currency string) (decimal.Decimal, error)
}

type DepositKeyGenerator interface {
	Generate(currency string) (connectors.DepositKey, error)
}

type SecretSealer interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(sealed string) (string, error)
}

// OrderReader serves read endpoints, possibly from a replica.
type OrderReader interface {
	FindByID(ctx context.Context, id string) (*model.Order, error)
	FindByUser(ctx context.Context, userID string) ([]model.Order, error)
}

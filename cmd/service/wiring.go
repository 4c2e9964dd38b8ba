package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"atcpay/src/connectors"
	"atcpay/src/database"
	"atcpay/src/engine"
	"atcpay/src/repository"
	"atcpay/src/security"
)

// openDatabases connects the write and read databases and migrates the schema.
func openDatabases() error {
	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to read-only database")
		return err
	}
	return nil
}

// buildEngine wires repositories and chain connectors into an engine. The caller owns the
// returned close func, which also disconnects the Ethereum node.
func buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg := connectors.GetConfig()

	sealer, err := security.NewSealerFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("wallet secrets key: %w", err)
	}

	node, err := connectors.DialEthereum(ctx, cfg.EthereumRPCURL)
	if err != nil {
		return nil, nil, err
	}

	explorer := connectors.NewEtherscanClient(cfg.EtherscanURL, cfg.EtherscanAPIKey, cfg.HTTPTimeout)
	tether, err := connectors.NewUsdtObserver(node, cfg.USDTContract, explorer, cfg.HTTPTimeout)
	if err != nil {
		node.Close()
		return nil, nil, err
	}

	e, err := engine.New(engine.GetConfig(), engine.Deps{
		Orders:       repository.NewOrderRepository(),
		Reads:        repository.NewOrderReadRepository(),
		Transactions: repository.NewTransactionRepository(),
		Wallets:      repository.NewWalletRepository(),
		Exceptions:   repository.NewExceptionRepository(),
		Ledger:       connectors.NewLedgerBridgeClient(cfg.LedgerBridgeURL, cfg.LedgerBridgeToken, cfg.HTTPTimeout),
		Bitcoin:      connectors.NewBlockchainInfoClient(cfg.BlockchainWSURL, cfg.BlockchainAPIURL, cfg.HTTPTimeout),
		Ether:        connectors.NewEthObserver(node, explorer, cfg.HTTPTimeout),
		Tether:       tether,
		Prices:       connectors.NewBinancePriceQuoter(cfg.PriceAPIURL),
		Keys:         connectors.NewKeyGenerator(),
		Sealer:       sealer,
	})
	if err != nil {
		node.Close()
		return nil, nil, err
	}

	return e, func() {
		e.Close()
		node.Close()
	}, nil
}

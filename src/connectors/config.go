package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BlockchainWSURL  string `envconfig:"BLOCKCHAIN_WS_URL" default:"wss://ws.blockchain.info/inv"`
	BlockchainAPIURL string `envconfig:"BLOCKCHAIN_API_URL" default:"https://blockchain.info"`

	EthereumRPCURL  string `envconfig:"ETHEREUM_RPC_URL" default:"https://mainnet.infura.io/v3/"`
	EtherscanURL    string `envconfig:"ETHERSCAN_URL" default:"https://api.etherscan.io"`
	EtherscanAPIKey string `envconfig:"ETHERSCAN_API_KEY"`
	USDTContract    string `envconfig:"USDT_CONTRACT" default:"0xdAC17F958D2ee523a2206206994597C13D831ec7"`

	LedgerBridgeURL   string `envconfig:"LEDGER_BRIDGE_URL" default:"http://localhost:8000"`
	LedgerBridgeToken string `envconfig:"LEDGER_BRIDGE_TOKEN"`

	PriceAPIURL string `envconfig:"PRICE_API_URL" default:"https://api.binance.com"`

	HTTPTimeout time.Duration `envconfig:"CONNECTOR_HTTP_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

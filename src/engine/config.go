package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	AssetCode   string          `envconfig:"ASSET_CODE" default:"ATC"`
	AssetIssuer string          `envconfig:"ISSUER_ACC_PUBLIC_KEY"`
	AssetUSD    decimal.Decimal `envconfig:"ASSET_USD" default:"1"`

	// Settlement payments leave the distributor account.
	DistributorAccount string `envconfig:"DISTRIBUTOR_ACC_PUBLIC_KEY"`
	DistributorSecret  string `envconfig:"DISTRIBUTOR_ACC_SECRET"`

	// Holding wallet creation and withdrawals are paid for by the funding account.
	FundingAccount  string          `envconfig:"FUNDING_ACC_PUBLIC_KEY"`
	FundingSecret   string          `envconfig:"FUNDING_ACC_SECRET"`
	StartingBalance decimal.Decimal `envconfig:"NEW_ACC_STARTING_BALANCE" default:"2"`
	WithdrawFee     decimal.Decimal `envconfig:"WITHDRAW_FEE" default:"0.5"`

	OrderTTL         time.Duration `envconfig:"ORDER_TTL" default:"1h"`
	PaymentPoll      time.Duration `envconfig:"PAYMENT_POLL_INTERVAL" default:"15s"`
	ConfirmationPoll time.Duration `envconfig:"CONFIRMATION_POLL_INTERVAL" default:"40s"`
	TrackerCeiling   time.Duration `envconfig:"TRACKER_CEILING" default:"1h"`
	TrackerPoolSize  int           `envconfig:"TRACKER_POOL_SIZE" default:"2048"`
	StuckClaimAfter  time.Duration `envconfig:"STUCK_CLAIM_AFTER" default:"10m"`

	BlockFeedMinBackoff time.Duration `envconfig:"BLOCK_FEED_MIN_BACKOFF" default:"1s"`
	BlockFeedMaxBackoff time.Duration `envconfig:"BLOCK_FEED_MAX_BACKOFF" default:"1m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

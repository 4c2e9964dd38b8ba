package service

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// BlockFeed turns the bitcoin block subscription off for processes that only serve reads.
	BlockFeed bool `envconfig:"BTC_BLOCK_FEED" default:"true"`
	// ReconcileOnStart re-attaches trackers before the API starts accepting requests.
	ReconcileOnStart bool `envconfig:"RECONCILE_ON_START" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

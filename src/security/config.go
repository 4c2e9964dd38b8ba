package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// WalletSecretsKey is the base64 encoded 32 byte key sealing deposit and holding wallet
	// secrets. It has no default.
	WalletSecretsKey string `envconfig:"WALLET_SECRETS_KEY"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

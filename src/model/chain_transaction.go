package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Observation is the normalized shape every chain observer returns for an incoming payment.
type Observation struct {
	Hash          string
	To            string
	Value         decimal.Decimal
	Confirmations int64
	BlockHeight   *int64
	Raw           json.RawMessage
}

// Block is a new-block event from the bitcoin push feed.
type Block struct {
	Height int64  `json:"height"`
	Hash   string `json:"hash"`
}

type BtcTx struct {
	Hash        string          `json:"hash"`
	Address     string          `json:"address"`
	Value       decimal.Decimal `json:"value"`
	BlockHeight *int64          `json:"block_height,omitempty"`
}

type EthTx struct {
	Hash          string          `json:"hash"`
	To            string          `json:"to"`
	Value         decimal.Decimal `json:"value"`
	Confirmations int64           `json:"confirmations"`
}

type UsdtTx struct {
	Hash          string          `json:"hash"`
	To            string          `json:"to"`
	Value         decimal.Decimal `json:"value"`
	Confirmations int64           `json:"confirmations"`
}

// ChainTransaction is the payment observed on the order's chain. Exactly one of
// Btc, Eth or Usdt is set, matching Currency. Raw keeps the explorer payload as received.
type ChainTransaction struct {
	Currency string          `json:"currency"`
	Btc      *BtcTx          `json:"btc,omitempty"`
	Eth      *EthTx          `json:"eth,omitempty"`
	Usdt     *UsdtTx         `json:"usdt,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// NewChainTransaction wraps an observation into the variant for currency.
func NewChainTransaction(currency string, obs Observation) *ChainTransaction {
	tx := &ChainTransaction{Currency: currency, Raw: obs.Raw}
	switch currency {
	case CurrencyBTC:
		tx.Btc = &BtcTx{Hash: obs.Hash, Address: obs.To, Value: obs.Value, BlockHeight: obs.BlockHeight}
	case CurrencyETH:
		tx.Eth = &EthTx{Hash: obs.Hash, To: obs.To, Value: obs.Value, Confirmations: obs.Confirmations}
	case CurrencyUSDT:
		tx.Usdt = &UsdtTx{Hash: obs.Hash, To: obs.To, Value: obs.Value, Confirmations: obs.Confirmations}
	}
	return tx
}

func (t *ChainTransaction) Hash() string {
	if t == nil {
		return ""
	}
	switch {
	case t.Btc != nil:
		return t.Btc.Hash
	case t.Eth != nil:
		return t.Eth.Hash
	case t.Usdt != nil:
		return t.Usdt.Hash
	}
	return ""
}

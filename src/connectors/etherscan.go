package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"atcpay/src/model"
)

const (
	weiExp            = -18
	noTransactionsMsg = "No transactions found"
)

// EtherscanClient lists incoming ether and token transfers for an address.
type EtherscanClient struct {
	http   *resty.Client
	apiKey string
}

func NewEtherscanClient(baseURL, apiKey string, timeout time.Duration) *EtherscanClient {
	return &EtherscanClient{
		http:   newRetryingClient(baseURL, timeout),
		apiKey: apiKey,
	}
}

type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanTx struct {
	Hash            string `json:"hash"`
	BlockNumber     string `json:"blockNumber"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Confirmations   string `json:"confirmations"`
	IsError         string `json:"isError"`
	ContractAddress string `json:"contractAddress"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// observation converts tx to an Observation, scaling value by exp.
func (tx etherscanTx) observation(exp int32) (model.Observation, error) {
	value, err := decimal.NewFromString(tx.Value)
	if err != nil {
		return model.Observation{}, fmt.Errorf("tx %s value %q: %w", tx.Hash, tx.Value, err)
	}
	confirmations, _ := strconv.ParseInt(tx.Confirmations, 10, 64)

	obs := model.Observation{
		Hash:          tx.Hash,
		To:            tx.To,
		Value:         value.Shift(exp),
		Confirmations: confirmations,
	}
	if height, err := strconv.ParseInt(tx.BlockNumber, 10, 64); err == nil {
		obs.BlockHeight = &height
	}
	if raw, err := json.Marshal(tx); err == nil {
		obs.Raw = raw
	}
	return obs, nil
}

func (c *EtherscanClient) list(ctx context.Context, params map[string]string) ([]etherscanTx, error) {
	var env etherscanEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("module", "account").
		SetQueryParam("sort", "asc").
		SetQueryParam("apikey", c.apiKey).
		SetResult(&env).
		Get("/api")
	if err != nil {
		return nil, fmt.Errorf("etherscan %s: %w", params["action"], err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("etherscan %s: status %d", params["action"], resp.StatusCode())
	}

	if env.Status != "1" {
		if strings.HasPrefix(env.Message, noTransactionsMsg) {
			return nil, nil
		}
		var detail string
		_ = json.Unmarshal(env.Result, &detail)
		return nil, fmt.Errorf("etherscan %s: %s %s", params["action"], env.Message, detail)
	}

	var txs []etherscanTx
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, fmt.Errorf("etherscan %s result: %w", params["action"], err)
	}
	return txs, nil
}

// ListEtherTransfers returns successful ether transfers into address, oldest first.
func (c *EtherscanClient) ListEtherTransfers(ctx context.Context, address string) ([]model.Observation, error) {
	txs, err := c.list(ctx, map[string]string{"action": "txlist", "address": address})
	if err != nil {
		return nil, err
	}

	out := make([]model.Observation, 0, len(txs))
	for _, tx := range txs {
		if tx.IsError == "1" || !strings.EqualFold(tx.To, address) {
			continue
		}
		obs, err := tx.observation(weiExp)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}

// ListTokenTransfers returns transfers of contract into address, oldest first.
func (c *EtherscanClient) ListTokenTransfers(ctx context.Context, contract, address string) ([]model.Observation, error) {
	txs, err := c.list(ctx, map[string]string{
		"action":          "tokentx",
		"contractaddress": contract,
		"address":         address,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Observation, 0, len(txs))
	for _, tx := range txs {
		if !strings.EqualFold(tx.To, address) || !strings.EqualFold(tx.ContractAddress, contract) {
			continue
		}
		decimals, err := strconv.ParseInt(tx.TokenDecimal, 10, 32)
		if err != nil {
			decimals = usdtDecimals
		}
		obs, err := tx.observation(-int32(decimals))
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}

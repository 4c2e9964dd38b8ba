package connectors

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"atcpay/src/model"
)

const usdtDecimals = 6

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"who","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// DialEthereum connects to an Ethereum JSON-RPC endpoint.
func DialEthereum(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC provider: %w", err)
	}
	return cli, nil
}

type balanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthObserver reads ether balances from a node and incoming transfers from the explorer.
type EthObserver struct {
	node     balanceReader
	explorer *EtherscanClient
	timeout  time.Duration
}

func NewEthObserver(node balanceReader, explorer *EtherscanClient, timeout time.Duration) *EthObserver {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &EthObserver{node: node, explorer: explorer, timeout: timeout}
}

// Balance returns the ether held by address.
func (o *EthObserver) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid ethereum address %q", address)
	}

	childCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	wei, err := o.node.BalanceAt(childCtx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", address, err)
	}
	return decimal.NewFromBigInt(wei, weiExp), nil
}

func (o *EthObserver) ListTransactions(ctx context.Context, address string) ([]model.Observation, error) {
	return o.explorer.ListEtherTransfers(ctx, address)
}

// UsdtObserver reads token balances through the ERC-20 contract.
type UsdtObserver struct {
	contract *bind.BoundContract
	address  string
	explorer *EtherscanClient
	timeout  time.Duration
}

func NewUsdtObserver(caller bind.ContractCaller, contract string, explorer *EtherscanClient, timeout time.Duration) (*UsdtObserver, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid token contract %q", contract)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token abi: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &UsdtObserver{
		contract: bind.NewBoundContract(common.HexToAddress(contract), parsed, caller, nil, nil),
		address:  contract,
		explorer: explorer,
		timeout:  timeout,
	}, nil
}

func (o *UsdtObserver) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid ethereum address %q", address)
	}

	childCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	opts := &bind.CallOpts{Context: childCtx}

	var out []interface{}
	if err := o.contract.Call(opts, &out, "balanceOf", common.HexToAddress(address)); err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", address, err)
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("balanceOf %s: unexpected result %T", address, out[0])
	}

	var dec []interface{}
	decimals := int32(usdtDecimals)
	if err := o.contract.Call(opts, &dec, "decimals"); err == nil {
		if d, ok := dec[0].(uint8); ok {
			decimals = int32(d)
		}
	}

	return decimal.NewFromBigInt(raw, -decimals), nil
}

func (o *UsdtObserver) ListTransactions(ctx context.Context, address string) ([]model.Observation, error) {
	return o.explorer.ListTokenTransfers(ctx, o.address, address)
}

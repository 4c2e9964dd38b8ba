package connectors

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"

type fakeNode struct {
	wei *big.Int
	err error
}

func (f fakeNode) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.wei, f.err
}

type fakeTokenCaller struct {
	abi     abi.ABI
	balance *big.Int
}

func (f fakeTokenCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f fakeTokenCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(f.balance)
	case "decimals":
		return method.Outputs.Pack(uint8(usdtDecimals))
	}
	return nil, errors.New("unexpected method " + method.Name)
}

func TestEthObserverBalance(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	obs := NewEthObserver(fakeNode{wei: wei}, nil, time.Second)

	got, err := obs.Balance(context.Background(), testAddr)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("1.5")), got.String())

	_, err = obs.Balance(context.Background(), "not-an-address")
	assert.Error(t, err)

	failing := NewEthObserver(fakeNode{err: assert.AnError}, nil, time.Second)
	_, err = failing.Balance(context.Background(), testAddr)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestUsdtObserverBalance(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)

	caller := fakeTokenCaller{abi: parsed, balance: big.NewInt(250_500000)}
	obs, err := NewUsdtObserver(caller, "0xdAC17F958D2ee523a2206206994597C13D831ec7", nil, time.Second)
	require.NoError(t, err)

	got, err := obs.Balance(context.Background(), testAddr)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("250.5")), got.String())
}

func TestNewUsdtObserverRejectsBadContract(t *testing.T) {
	_, err := NewUsdtObserver(nil, "nope", nil, time.Second)
	assert.Error(t, err)
}

func TestEtherscanListEtherTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "txlist", q.Get("action"))
		assert.Equal(t, "account", q.Get("module"))
		assert.Equal(t, "asc", q.Get("sort"))
		assert.Equal(t, "key", q.Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0xa","blockNumber":"100","to":"` + strings.ToLower(testAddr) + `","value":"2000000000000000000","confirmations":"7","isError":"0"},
			{"hash":"0xb","blockNumber":"101","to":"` + testAddr + `","value":"1","confirmations":"6","isError":"1"},
			{"hash":"0xc","blockNumber":"102","to":"0x0000000000000000000000000000000000000001","value":"1","confirmations":"5","isError":"0"}
		]}`))
	}))
	defer srv.Close()

	client := NewEtherscanClient(srv.URL, "key", time.Second)
	got, err := client.ListEtherTransfers(context.Background(), testAddr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0xa", got[0].Hash)
	assert.Equal(t, int64(7), got[0].Confirmations)
	assert.True(t, got[0].Value.Equal(decimal.NewFromInt(2)))
	require.NotNil(t, got[0].BlockHeight)
	assert.Equal(t, int64(100), *got[0].BlockHeight)
	assert.NotEmpty(t, got[0].Raw)
}

func TestEtherscanListTokenTransfers(t *testing.T) {
	const contract = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tokentx", r.URL.Query().Get("action"))
		assert.Equal(t, contract, r.URL.Query().Get("contractaddress"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0xt","blockNumber":"5","to":"` + testAddr + `","value":"12340000","confirmations":"2","contractAddress":"` + strings.ToLower(contract) + `","tokenDecimal":"6"}
		]}`))
	}))
	defer srv.Close()

	client := NewEtherscanClient(srv.URL, "", time.Second)
	got, err := client.ListTokenTransfers(context.Background(), contract, testAddr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Value.Equal(decimal.RequireFromString("12.34")), got[0].Value.String())
}

func TestEtherscanKeepsOldestTransferFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sort") != "asc" {
			t.Errorf("expected ascending sort, got %q", r.URL.Query().Get("sort"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0xold","blockNumber":"100","to":"` + testAddr + `","value":"1000000000000000000","confirmations":"9","isError":"0"},
			{"hash":"0xnew","blockNumber":"104","to":"` + testAddr + `","value":"1000000000000000000","confirmations":"5","isError":"0"}
		]}`))
	}))
	defer srv.Close()

	got, err := NewEtherscanClient(srv.URL, "", time.Second).ListEtherTransfers(context.Background(), testAddr)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0xold", got[0].Hash)
	assert.Equal(t, "0xnew", got[1].Hash)
}

func TestEtherscanNoTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	}))
	defer srv.Close()

	got, err := NewEtherscanClient(srv.URL, "", time.Second).ListEtherTransfers(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEtherscanErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
	}))
	defer srv.Close()

	_, err := NewEtherscanClient(srv.URL, "", time.Second).ListEtherTransfers(context.Background(), testAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API Key")
}

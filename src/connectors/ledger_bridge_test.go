package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAccountBalanceOf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/GHOLD", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"GHOLD","sequence":"42","balances":[
			{"asset_code":"","asset_issuer":"","balance":"2.0000000"},
			{"asset_code":"ATC","asset_issuer":"GISSUER","balance":"120.5000000"}
		]}`))
	}))
	defer srv.Close()

	client := NewLedgerBridgeClient(srv.URL, "secret-token", time.Second)
	acc, err := client.LoadAccount(context.Background(), "GHOLD")
	require.NoError(t, err)
	assert.Equal(t, "42", acc.Sequence)
	assert.True(t, acc.BalanceOf("ATC", "GISSUER").Equal(decimal.RequireFromString("120.5")))
	assert.True(t, acc.BalanceOf("ATC", "GOTHER").IsZero())
}

func TestLoadAccountNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewLedgerBridgeClient(srv.URL, "", time.Second).LoadAccount(context.Background(), "GNONE")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSubmitPaymentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req PaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "GFUND", req.Source)
		assert.Equal(t, "GHOLD", req.Destination)
		assert.True(t, req.Amount.Equal(decimal.NewFromInt(100)))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hash":"txhash","ledger":991}`))
	}))
	defer srv.Close()

	res, err := NewLedgerBridgeClient(srv.URL, "", time.Second).SubmitPayment(context.Background(), PaymentRequest{
		Source:      "GFUND",
		Signers:     []string{"SFUND"},
		Destination: "GHOLD",
		AssetCode:   "ATC",
		AssetIssuer: "GISSUER",
		Amount:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "txhash", res.Hash)
	assert.Equal(t, int64(991), res.Ledger)
	assert.JSONEq(t, `{"hash":"txhash","ledger":991}`, string(res.Raw))
}

func TestSubmitPaymentRejectedIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"title":"Transaction Failed","extras":{"result_codes":{"transaction":"tx_failed","operations":["op_underfunded"]}}}`))
	}))
	defer srv.Close()

	_, err := NewLedgerBridgeClient(srv.URL, "", time.Second).SubmitPayment(context.Background(), PaymentRequest{
		Source:      "GFUND",
		Destination: "GHOLD",
		Amount:      decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var lerr *LedgerError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "tx_failed,op_underfunded", lerr.Reason())
	assert.Contains(t, lerr.Error(), "does not hold enough")
}

func TestCreateAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_key":"GNEW","secret":"SNEW"}`))
	}))
	defer srv.Close()

	acc, err := NewLedgerBridgeClient(srv.URL, "", time.Second).
		CreateAccount(context.Background(), "GFUND", []string{"SFUND"}, decimal.NewFromInt(2), "ATC", "GISSUER")
	require.NoError(t, err)
	assert.Equal(t, "GNEW", acc.PublicKey)
	assert.Equal(t, "SNEW", acc.Secret)
}

func TestGetErrorMsgUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN_LEDGER_RESULT_op_weird", GetErrorMsg("op_weird"))
}

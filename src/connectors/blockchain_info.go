package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"atcpay/src/model"
)

const (
	satoshiExp        = -8
	wsPingInterval    = 30 * time.Second
	wsWriteDeadline   = 10 * time.Second
	blockFeedBuffer   = 16
	addressFeedBuffer = 4
)

// BlockchainInfoClient observes bitcoin payments through the blockchain.info
// websocket feed and its REST API.
type BlockchainInfoClient struct {
	wsURL  string
	http   *resty.Client
	dialer websocket.Dialer
}

func NewBlockchainInfoClient(wsURL, apiURL string, timeout time.Duration) *BlockchainInfoClient {
	return &BlockchainInfoClient{
		wsURL: wsURL,
		http:  newRetryingClient(apiURL, timeout),
		dialer: websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
			Proxy:             http.ProxyFromEnvironment,
		},
	}
}

type wsOp struct {
	Op   string `json:"op"`
	Addr string `json:"addr,omitempty"`
}

type wsMessage struct {
	Op string          `json:"op"`
	X  json.RawMessage `json:"x"`
}

type btcOutput struct {
	Addr  string `json:"addr"`
	Value int64  `json:"value"`
}

// btcTransaction is shared by "utx" websocket events and /rawtx responses.
type btcTransaction struct {
	Hash        string      `json:"hash"`
	BlockHeight *int64      `json:"block_height"`
	Out         []btcOutput `json:"out"`
}

func satoshisToBTC(v int64) decimal.Decimal {
	return decimal.New(v, satoshiExp)
}

// observe sums the outputs paying address. ok is false when none does.
func (tx btcTransaction) observe(address string, raw json.RawMessage) (model.Observation, bool) {
	var total int64
	found := false
	for _, out := range tx.Out {
		if out.Addr == address {
			total += out.Value
			found = true
		}
	}
	return model.Observation{
		Hash:        tx.Hash,
		To:          address,
		Value:       satoshisToBTC(total),
		BlockHeight: tx.BlockHeight,
		Raw:         raw,
	}, found
}

func (c *BlockchainInfoClient) dial(ctx context.Context, subscribe wsOp) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial failed: %w", err)
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ws %s failed: %w", subscribe.Op, err)
	}
	return conn, nil
}

// stream reads messages until the socket fails or ctx ends. The goroutine started here is
// the only writer after subscription: it pings and sends farewell on ctx end.
func (c *BlockchainInfoClient) stream(ctx context.Context, conn *websocket.Conn, farewell *wsOp, handle func(wsMessage)) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if farewell != nil {
					_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
					_ = conn.WriteJSON(farewell)
				}
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
				if err := conn.WriteJSON(wsOp{Op: "ping"}); err != nil {
					_ = conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()
	defer close(done)
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).WithField("feed", c.wsURL).Warn("bitcoin feed closed")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WithError(err).Warn("bitcoin feed sent an undecodable message")
			continue
		}
		handle(msg)
	}
}

// SubscribeBlocks streams new blocks. The channel closes when ctx ends or the socket drops;
// callers reconnect by subscribing again.
func (c *BlockchainInfoClient) SubscribeBlocks(ctx context.Context) (<-chan model.Block, error) {
	conn, err := c.dial(ctx, wsOp{Op: "blocks_sub"})
	if err != nil {
		return nil, err
	}

	out := make(chan model.Block, blockFeedBuffer)
	go func() {
		defer close(out)
		c.stream(ctx, conn, nil, func(msg wsMessage) {
			if msg.Op != "block" {
				return
			}
			var b model.Block
			if err := json.Unmarshal(msg.X, &b); err != nil {
				logger.WithError(err).Warn("undecodable block event")
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		})
	}()

	return out, nil
}

// SubscribeAddress streams unconfirmed transactions paying address. Cancelling ctx
// unsubscribes the address and closes the channel.
func (c *BlockchainInfoClient) SubscribeAddress(ctx context.Context, address string) (<-chan model.Observation, error) {
	conn, err := c.dial(ctx, wsOp{Op: "addr_sub", Addr: address})
	if err != nil {
		return nil, err
	}

	out := make(chan model.Observation, addressFeedBuffer)
	go func() {
		defer close(out)
		c.stream(ctx, conn, &wsOp{Op: "addr_unsub", Addr: address}, func(msg wsMessage) {
			if msg.Op != "utx" {
				return
			}
			var tx btcTransaction
			if err := json.Unmarshal(msg.X, &tx); err != nil {
				logger.WithError(err).WithField("address", address).Warn("undecodable address event")
				return
			}
			obs, ok := tx.observe(address, msg.X)
			if !ok {
				return
			}
			select {
			case out <- obs:
			case <-ctx.Done():
			}
		})
	}()

	return out, nil
}

// LookupTransaction fetches hash from the REST API, mainly to learn its block height.
func (c *BlockchainInfoClient) LookupTransaction(ctx context.Context, hash, address string) (*model.Observation, error) {
	var tx btcTransaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("hash", hash).
		SetResult(&tx).
		Get("/rawtx/{hash}")
	if err != nil {
		return nil, fmt.Errorf("rawtx %s: %w", hash, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rawtx %s: status %d: %s", hash, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	obs, _ := tx.observe(address, json.RawMessage(resp.Body()))
	return &obs, nil
}

package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// LedgerBridgeClient talks to the settlement ledger through its HTTP bridge. Reads retry,
// submissions do not.
type LedgerBridgeClient struct {
	reader    *resty.Client
	submitter *resty.Client
}

func NewLedgerBridgeClient(baseURL, token string, timeout time.Duration) *LedgerBridgeClient {
	reader := newRetryingClient(baseURL, timeout)
	submitter := newSingleShotClient(baseURL, timeout)
	if token != "" {
		reader.SetAuthToken(token)
		submitter.SetAuthToken(token)
	}
	return &LedgerBridgeClient{reader: reader, submitter: submitter}
}

type Balance struct {
	AssetCode   string          `json:"asset_code"`
	AssetIssuer string          `json:"asset_issuer"`
	Balance     decimal.Decimal `json:"balance"`
}

type Account struct {
	ID       string    `json:"id"`
	Sequence string    `json:"sequence"`
	Balances []Balance `json:"balances"`
}

// BalanceOf returns the account's holding of the given asset, zero when it holds none.
func (a *Account) BalanceOf(code, issuer string) decimal.Decimal {
	for _, b := range a.Balances {
		if b.AssetCode == code && b.AssetIssuer == issuer {
			return b.Balance
		}
	}
	return decimal.Zero
}

// PaymentRequest is a single payment operation. Source pays the fee and sequence,
// OperationSource (when set) is the account the asset leaves.
type PaymentRequest struct {
	Source          string          `json:"source"`
	Signers         []string        `json:"signers"`
	OperationSource string          `json:"operation_source,omitempty"`
	Destination     string          `json:"destination"`
	AssetCode       string          `json:"asset_code"`
	AssetIssuer     string          `json:"asset_issuer"`
	Amount          decimal.Decimal `json:"amount"`
	Memo            string          `json:"memo,omitempty"`
}

type PaymentResult struct {
	Hash   string          `json:"hash"`
	Ledger int64           `json:"ledger"`
	Raw    json.RawMessage `json:"-"`
}

type CreatedAccount struct {
	PublicKey string `json:"public_key"`
	Secret    string `json:"secret"`
}

type createAccountRequest struct {
	Funder          string          `json:"funder"`
	Signers         []string        `json:"signers"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	TrustAssetCode  string          `json:"trust_asset_code"`
	TrustIssuer     string          `json:"trust_asset_issuer"`
}

type ledgerProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Extras struct {
		ResultCodes ResultCodes `json:"result_codes"`
	} `json:"extras"`
}

func problemFrom(resp *resty.Response) error {
	var p ledgerProblem
	_ = json.Unmarshal(resp.Body(), &p)
	title := p.Title
	if title == "" {
		title = strings.TrimSpace(resp.String())
	}
	return &LedgerError{
		Status:      resp.StatusCode(),
		Title:       title,
		ResultCodes: p.Extras.ResultCodes,
		Raw:         resp.Body(),
	}
}

// ErrAccountNotFound is returned by LoadAccount for an account the ledger does not know.
var ErrAccountNotFound = errors.New("ledger account not found")

func (c *LedgerBridgeClient) LoadAccount(ctx context.Context, id string) (*Account, error) {
	var acc Account
	resp, err := c.reader.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&acc).
		Get("/accounts/{id}")
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if resp.IsError() {
		return nil, problemFrom(resp)
	}
	return &acc, nil
}

// SubmitPayment submits one payment and waits for the ledger's verdict. A transport error
// leaves the outcome unknown.
func (c *LedgerBridgeClient) SubmitPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	var result PaymentResult
	resp, err := c.submitter.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/payments")
	if err != nil {
		return nil, fmt.Errorf("submit payment to %s: %w", req.Destination, err)
	}
	if resp.IsError() {
		lerr := problemFrom(resp)
		logger.WithFields(map[string]interface{}{
			"connector":   "LedgerBridge",
			"op":          "SubmitPayment",
			"destination": req.Destination,
			"status":      resp.StatusCode(),
		}).WithError(lerr).Warn("Ledger rejected payment")
		return nil, lerr
	}

	result.Raw = append(json.RawMessage(nil), resp.Body()...)
	return &result, nil
}

// CreateAccount creates and funds a fresh ledger account trusting the given asset.
func (c *LedgerBridgeClient) CreateAccount(
	ctx context.Context,
	funder string,
	signers []string,
	startingBalance decimal.Decimal,
	assetCode, assetIssuer string,
) (*CreatedAccount, error) {
	var created CreatedAccount
	resp, err := c.submitter.R().
		SetContext(ctx).
		SetBody(createAccountRequest{
			Funder:          funder,
			Signers:         signers,
			StartingBalance: startingBalance,
			TrustAssetCode:  assetCode,
			TrustIssuer:     assetIssuer,
		}).
		SetResult(&created).
		Post("/accounts")
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if resp.IsError() {
		return nil, problemFrom(resp)
	}
	if created.PublicKey == "" || created.Secret == "" {
		return nil, errors.New("create account: bridge returned no keypair")
	}
	return &created, nil
}

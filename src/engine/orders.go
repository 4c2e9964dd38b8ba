package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/validator.v2"

	"atcpay/src/model"
)

// CreateOrderRequest holds the commercial terms of a new order.
type CreateOrderRequest struct {
	Pair    string `json:"pair" validate:"nonzero,regexp=^[A-Z0-9]+(BTC|ETH|USDT)$"`
	Amount  int64  `json:"amount" validate:"min=5,max=10000"`
	UserID  string `json:"userId" validate:"nonzero,max=60"`
	APIUser string `json:"-"`
}

var (
	discountedQuote = decimal.RequireFromString("0.995")
	pairPriceDigits = map[string]int32{
		model.CurrencyBTC:  8,
		model.CurrencyETH:  8,
		model.CurrencyUSDT: 4,
	}
)

const totalPriceDigits = 8

// priceMultiplier discounts volatile currencies against the quote.
func priceMultiplier(currency string) decimal.Decimal {
	if currency == model.CurrencyUSDT {
		return decimal.NewFromInt(1)
	}
	return discountedQuote
}

// currencyOf extracts the accepted currency from a pair such as ATCBTC.
func (e *Engine) currencyOf(pair string) (string, error) {
	if !strings.HasPrefix(pair, e.cfg.AssetCode) {
		return "", fmt.Errorf("%w: pair %q is not quoted in %s", ErrInvalidRequest, pair, e.cfg.AssetCode)
	}
	currency := strings.TrimPrefix(pair, e.cfg.AssetCode)
	if !model.IsSupportedCurrency(currency) {
		return "", fmt.Errorf("%w: currency %q not accepted", ErrInvalidRequest, currency)
	}
	return currency, nil
}

// CreateOrder prices and persists a new awaiting_payment order with a fresh deposit
// address, then starts its tracker.
func (e *Engine) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	currency, err := e.currencyOf(req.Pair)
	if err != nil {
		return nil, err
	}

	quote, err := e.deps.Prices.QuoteUSD(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", currency, err)
	}
	currencyUSD := quote.Mul(priceMultiplier(currency))
	if !currencyUSD.IsPositive() {
		return nil, fmt.Errorf("quote %s: non-positive price %s", currency, currencyUSD)
	}

	pairPrice := e.cfg.AssetUSD.DivRound(currencyUSD, 16).Round(pairPriceDigits[currency])
	amount := decimal.NewFromInt(req.Amount)
	totalPrice := amount.Mul(pairPrice).Round(totalPriceDigits)

	key, err := e.deps.Keys.Generate(currency)
	if err != nil {
		return nil, fmt.Errorf("deposit address: %w", err)
	}
	sealed, err := e.deps.Sealer.EncryptString(key.Secret)
	if err != nil {
		return nil, fmt.Errorf("seal deposit secret: %w", err)
	}

	now := e.now()
	order := &model.Order{
		ID:                    uuid.NewString(),
		Pair:                  req.Pair,
		AssetUSD:              e.cfg.AssetUSD,
		AcceptableCurrency:    currency,
		AcceptableCurrencyUSD: currencyUSD,
		PairPrice:             pairPrice,
		Amount:                amount,
		TotalPrice:            totalPrice,
		WalletAddress:         key.Address,
		WalletSecret:          sealed,
		AssetCode:             e.cfg.AssetCode,
		AssetIssuer:           e.cfg.AssetIssuer,
		APIUser:               req.APIUser,
		UserID:                req.UserID,
		Status:                model.StatusAwaitingPayment,
		ExpirationDate:        now.Add(e.cfg.OrderTTL),
		ConfirmationsNeeded:   model.ConfirmationsNeededFor(currency),
	}

	if err := e.deps.Orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := e.Tracker.Track(ctx, order.ID); err != nil {
		// The order stays awaiting_payment and is picked up by the next reconciliation.
		logger.WithError(err).WithField("order_id", order.ID).Error("Failed to start tracker")
	}

	return order, nil
}

// GetOrder returns order id or ErrOrderNotFound.
func (e *Engine) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	order, err := e.reads.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (e *Engine) ListUserOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return e.reads.FindByUser(ctx, userID)
}

// Prices is the asset's quote in every accepted currency.
type Prices struct {
	BTCUSD    decimal.Decimal `json:"BTCUSD"`
	ETHUSD    decimal.Decimal `json:"ETHUSD"`
	USDTUSD   decimal.Decimal `json:"USDTUSD"`
	AssetUSD  decimal.Decimal `json:"ASSETUSD"`
	AssetBTC  decimal.Decimal `json:"ASSETBTC"`
	AssetETH  decimal.Decimal `json:"ASSETETH"`
	AssetUSDT decimal.Decimal `json:"ASSETUSDT"`
	AssetCode string          `json:"ASSETCODE"`
}

func (e *Engine) Prices(ctx context.Context) (*Prices, error) {
	quotes := make(map[string]decimal.Decimal, 3)
	for _, currency := range []string{model.CurrencyBTC, model.CurrencyETH, model.CurrencyUSDT} {
		q, err := e.deps.Prices.QuoteUSD(ctx, currency)
		if err != nil {
			return nil, fmt.Errorf("quote %s: %w", currency, err)
		}
		if !q.IsPositive() {
			return nil, errors.New("quote " + currency + " is not positive")
		}
		quotes[currency] = q
	}

	per := func(currency string) decimal.Decimal {
		return e.cfg.AssetUSD.DivRound(quotes[currency], 16).Round(pairPriceDigits[currency])
	}

	return &Prices{
		BTCUSD:    quotes[model.CurrencyBTC],
		ETHUSD:    quotes[model.CurrencyETH],
		USDTUSD:   quotes[model.CurrencyUSDT],
		AssetUSD:  e.cfg.AssetUSD,
		AssetBTC:  per(model.CurrencyBTC),
		AssetETH:  per(model.CurrencyETH),
		AssetUSDT: per(model.CurrencyUSDT),
		AssetCode: e.cfg.AssetCode,
	}, nil
}

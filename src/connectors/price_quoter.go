package connectors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"

	"atcpay/src/model"
)

type tickerSource interface {
	GetTicker(currency goex.CurrencyPair) (*goex.Ticker, error)
}

// PriceQuoter quotes accepted currencies in USD from spot tickers against USDT.
type PriceQuoter struct {
	exchange tickerSource
}

func NewBinancePriceQuoter(endpoint string) *PriceQuoter {
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   endpoint,
	}
	return &PriceQuoter{exchange: binance.NewWithConfig(apiConfig)}
}

// QuoteUSD returns the last traded USD price of currency. USDT is pegged at 1.
func (q *PriceQuoter) QuoteUSD(ctx context.Context, currency string) (decimal.Decimal, error) {
	if currency == model.CurrencyUSDT {
		return decimal.NewFromInt(1), nil
	}
	if !model.IsSupportedCurrency(currency) {
		return decimal.Zero, fmt.Errorf("no quote for currency %q", currency)
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	pair := goex.NewCurrencyPair(goex.Currency{Symbol: currency}, goex.USDT)
	ticker, err := q.exchange.GetTicker(pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", pair.ToSymbol(""), err)
	}
	if ticker == nil || ticker.Last <= 0 {
		return decimal.Zero, fmt.Errorf("ticker %s: no last price", pair.ToSymbol(""))
	}
	return decimal.NewFromFloat(ticker.Last), nil
}

package price

import (
	"context"
	"net/http"
	"time"

	"crypto-alert-bot/internal/currency"
	"crypto-alert-bot/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
)

type Coinpaprika struct {
	client *coinpaprika.Client
}

func NewCoinpaprika(apiProKey string, timeout time.Duration) *Coinpaprika {
	return NewCoinpaprikaWithClient(&http.Client{Timeout: timeout}, apiProKey)
}

func NewCoinpaprikaWithClient(httpClient *http.Client, apiProKey string) *Coinpaprika {
	if apiProKey != "" {
		return &Coinpaprika{client: coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiProKey))}
	}
	return &Coinpaprika{client: coinpaprika.NewClient(httpClient)}
}

type tickerResult struct {
	ticker *coinpaprika.Ticker
	err    error
}

func (o *Coinpaprika) GetPrice(ctx context.Context, c currency.Currency) (float64, error) {
	if c.CoinpaprikaID == "" {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "%s has no coinpaprika id", c.Symbol)
	}

	// the client has no context support; the http timeout still bounds the call
	done := make(chan tickerResult, 1)
	go func() {
		ticker, err := o.client.Tickers.GetByID(c.CoinpaprikaID, &coinpaprika.TickersOptions{Quotes: "USD"})
		done <- tickerResult{ticker: ticker, err: err}
	}()

	var res tickerResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "coinpaprika request for %s: %v", c.Symbol, ctx.Err())
	}

	if res.err != nil {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "coinpaprika request for %s: %v", c.Symbol, res.err)
	}
	if res.ticker == nil || res.ticker.Quotes == nil {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "coinpaprika has no quotes for %s", c.Symbol)
	}

	quote, ok := res.ticker.Quotes["USD"]
	if !ok {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "coinpaprika has no USD quote for %s", c.Symbol)
	}
	return validPrice(c.Symbol, quote.Price)
}

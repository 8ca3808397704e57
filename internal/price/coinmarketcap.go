package price

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"crypto-alert-bot/internal/currency"
	"crypto-alert-bot/internal/types"

	"github.com/pkg/errors"
)

// CoinMarketCap queries the pro quotes/latest endpoint by slug.
type CoinMarketCap struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type cmcQuote struct {
	Quote struct {
		USD struct {
			Price *float64 `json:"price"`
		} `json:"USD"`
	} `json:"quote"`
}

func NewCoinMarketCap(baseURL, apiKey string, timeout time.Duration) *CoinMarketCap {
	return &CoinMarketCap{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *CoinMarketCap) GetPrice(ctx context.Context, c currency.Currency) (float64, error) {
	if c.CoinMarketCapID == "" {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "%s has no coinmarketcap id", c.Symbol)
	}

	u, err := url.Parse(o.baseURL)
	if err != nil {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "invalid coinmarketcap url: %v", err)
	}
	q := u.Query()
	q.Set("slug", c.Symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "could not build request: %v", err)
	}
	req.Header.Set("Accepts", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "coinmarketcap request for %s: %v", c.Symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "coinmarketcap returned %s for %s", resp.Status, c.Symbol)
	}

	var body struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "could not parse coinmarketcap response: %v", err)
	}

	raw, ok := body.Data[c.CoinMarketCapID]
	if !ok {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "coinmarketcap response has no entry %s", c.CoinMarketCapID)
	}

	// the entry is an object for id lookups and a list for some slug lookups
	var quote cmcQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		var quotes []cmcQuote
		if err := json.Unmarshal(raw, &quotes); err != nil || len(quotes) == 0 {
			return 0, errors.Wrapf(types.ErrOracleUnavailable, "unexpected coinmarketcap entry for %s", c.Symbol)
		}
		quote = quotes[0]
	}

	return validPrice(c.Symbol, quote.Quote.USD.Price)
}

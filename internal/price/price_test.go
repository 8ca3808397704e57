package price

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"crypto-alert-bot/internal/currency"
	"crypto-alert-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bitcoin  = currency.Currency{Symbol: "bitcoin", Name: "Bitcoin", CoinMarketCapID: "1", CoinpaprikaID: "btc-bitcoin"}
	ethereum = currency.Currency{Symbol: "ethereum", Name: "Ethereum", CoinMarketCapID: "1027", CoinpaprikaID: "eth-ethereum"}
)

func TestCoinMarketCapGetPrice(t *testing.T) {
	var gotKey, gotSlug string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-CMC_PRO_API_KEY")
		gotSlug = r.URL.Query().Get("slug")
		switch gotSlug {
		case "bitcoin":
			fmt.Fprint(w, `{"data":{"1":{"id":1,"quote":{"USD":{"price":49999.99}}}}}`)
		case "ethereum":
			fmt.Fprint(w, `{"data":{"1027":[{"id":1027,"quote":{"USD":{"price":3000}}}]}}`)
		}
	}))
	defer srv.Close()

	o := NewCoinMarketCap(srv.URL, "secret", time.Second)

	p, err := o.GetPrice(context.Background(), bitcoin)
	require.NoError(t, err)
	assert.Equal(t, 49999.99, p)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "bitcoin", gotSlug)

	p, err = o.GetPrice(context.Background(), ethereum)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p)
}

func TestCoinMarketCapFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		delayed bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "malformed json", status: http.StatusOK, body: `{"data":`},
		{name: "missing entry", status: http.StatusOK, body: `{"data":{"2":{}}}`},
		{name: "missing price", status: http.StatusOK, body: `{"data":{"1":{"quote":{"EUR":{"price":1}}}}}`},
		{name: "zero price", status: http.StatusOK, body: `{"data":{"1":{"quote":{"USD":{"price":0}}}}}`},
		{name: "empty list", status: http.StatusOK, body: `{"data":{"1":[]}}`},
		{name: "timeout", status: http.StatusOK, body: `{"data":{"1":{"quote":{"USD":{"price":1}}}}}`, delayed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := make(chan struct{})
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delayed {
					select {
					case <-release:
					case <-r.Context().Done():
					}
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()
			defer close(release)

			o := NewCoinMarketCap(srv.URL, "", 50*time.Millisecond)
			_, err := o.GetPrice(context.Background(), bitcoin)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrOracleUnavailable), err.Error())
		})
	}
}

func TestCoinMarketCapUnknownCurrency(t *testing.T) {
	o := NewCoinMarketCap("http://127.0.0.1:1", "", time.Second)
	_, err := o.GetPrice(context.Background(), currency.Currency{Symbol: "solana"})
	assert.True(t, errors.Is(err, types.ErrOracleUnavailable))
}

// redirectTransport sends every request to the test server, whatever the host.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func TestCoinpaprikaGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "btc-bitcoin"):
			fmt.Fprint(w, `{"id":"btc-bitcoin","name":"Bitcoin","symbol":"BTC","quotes":{"USD":{"price":64000.5}}}`)
		case strings.Contains(r.URL.Path, "eth-ethereum"):
			fmt.Fprint(w, `{"id":"eth-ethereum","name":"Ethereum","symbol":"ETH","quotes":{}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"id not found"}`)
		}
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	o := NewCoinpaprikaWithClient(&http.Client{Transport: redirectTransport{target: target}, Timeout: time.Second}, "")

	p, err := o.GetPrice(context.Background(), bitcoin)
	require.NoError(t, err)
	assert.Equal(t, 64000.5, p)

	_, err = o.GetPrice(context.Background(), ethereum)
	assert.True(t, errors.Is(err, types.ErrOracleUnavailable))

	_, err = o.GetPrice(context.Background(), currency.Currency{Symbol: "x", CoinpaprikaID: "x-unknown"})
	assert.True(t, errors.Is(err, types.ErrOracleUnavailable))

	_, err = o.GetPrice(context.Background(), currency.Currency{Symbol: "y"})
	assert.True(t, errors.Is(err, types.ErrOracleUnavailable))
}

type countingOracle struct {
	calls atomic.Int32
	price float64
	err   error
}

func (o *countingOracle) GetPrice(_ context.Context, _ currency.Currency) (float64, error) {
	o.calls.Add(1)
	return o.price, o.err
}

func TestCache(t *testing.T) {
	inner := &countingOracle{price: 100}
	c := NewCache(inner, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		p, err := c.GetPrice(context.Background(), bitcoin)
		require.NoError(t, err)
		assert.Equal(t, 100.0, p)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	_, err := c.GetPrice(context.Background(), ethereum)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	now = now.Add(2 * time.Minute)
	inner.price = 200
	p, err := c.GetPrice(context.Background(), bitcoin)
	require.NoError(t, err)
	assert.Equal(t, 200.0, p)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	inner := &countingOracle{err: types.ErrOracleUnavailable}
	c := NewCache(inner, time.Minute)

	_, err := c.GetPrice(context.Background(), bitcoin)
	assert.Error(t, err)
	_, err = c.GetPrice(context.Background(), bitcoin)
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

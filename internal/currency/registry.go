// Package currency holds the set of assets the bot can track together with
// the parameters each price source needs to look them up.
package currency

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Currency struct {
	// Symbol is the stable key stored with alerts, e.g. "bitcoin".
	Symbol string
	Name   string
	// CoinMarketCapID is the key of the quote inside CoinMarketCap's "data" object.
	CoinMarketCapID string
	CoinpaprikaID   string
}

type Registry struct {
	mu         sync.RWMutex
	currencies map[string]Currency
	order      []string
}

func NewRegistry(currencies ...Currency) (*Registry, error) {
	r := &Registry{currencies: make(map[string]Currency)}
	for _, c := range currencies {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns the currencies supported out of the box.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(
		Currency{Symbol: "bitcoin", Name: "Bitcoin", CoinMarketCapID: "1", CoinpaprikaID: "btc-bitcoin"},
		Currency{Symbol: "ethereum", Name: "Ethereum", CoinMarketCapID: "1027", CoinpaprikaID: "eth-ethereum"},
	)
	return r
}

func (r *Registry) Register(c Currency) error {
	c.Symbol = strings.ToLower(strings.TrimSpace(c.Symbol))
	if c.Symbol == "" {
		return fmt.Errorf("currency symbol is empty")
	}
	// "|" separates callback data fields
	if strings.Contains(c.Symbol, "|") {
		return fmt.Errorf("currency symbol %q contains '|'", c.Symbol)
	}
	if c.Name == "" {
		c.Name = strings.ToUpper(c.Symbol[:1]) + c.Symbol[1:]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.currencies[c.Symbol]; exists {
		return fmt.Errorf("currency %q already registered", c.Symbol)
	}
	r.currencies[c.Symbol] = c
	r.order = append(r.order, c.Symbol)
	return nil
}

func (r *Registry) Lookup(symbol string) (Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.currencies[strings.ToLower(symbol)]
	return c, ok
}

// All returns currencies in registration order.
func (r *Registry) All() []Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Currency, 0, len(r.order))
	for _, s := range r.order {
		all = append(all, r.currencies[s])
	}
	return all
}

func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, len(r.order))
	copy(symbols, r.order)
	sort.Strings(symbols)
	return symbols
}

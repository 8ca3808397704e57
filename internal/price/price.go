package price

import (
	"context"
	"math"
	"sync"
	"time"

	"crypto-alert-bot/internal/currency"
	"crypto-alert-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Oracle returns the current USD price of a currency. Every failure wraps
// types.ErrOracleUnavailable.
type Oracle interface {
	GetPrice(ctx context.Context, c currency.Currency) (float64, error)
}

func validPrice(symbol string, p *float64) (float64, error) {
	if p == nil {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "no USD price for %s", symbol)
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) || *p <= 0 {
		return 0, errors.Wrapf(types.ErrOracleUnavailable, "invalid USD price %v for %s", *p, symbol)
	}
	return *p, nil
}

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// Cache keeps recently fetched prices in memory for ttl.
type Cache struct {
	oracle Oracle
	ttl    time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	prices map[string]cachedPrice
}

func NewCache(oracle Oracle, ttl time.Duration) *Cache {
	return &Cache{
		oracle: oracle,
		ttl:    ttl,
		now:    time.Now,
		prices: make(map[string]cachedPrice),
	}
}

func (c *Cache) GetPrice(ctx context.Context, cur currency.Currency) (float64, error) {
	c.mu.RLock()
	cached, exists := c.prices[cur.Symbol]
	c.mu.RUnlock()

	if exists && c.now().Sub(cached.fetchedAt) < c.ttl {
		return cached.price, nil
	}

	p, err := c.oracle.GetPrice(ctx, cur)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.prices[cur.Symbol] = cachedPrice{price: p, fetchedAt: c.now()}
	c.mu.Unlock()

	log.WithFields(log.Fields{"currency": cur.Symbol, "price": p}).Debug("price cached")
	return p, nil
}

package prices

import (
	"context"
	"sync"
	"time"
)

// Quoter is the slice of Service the oracle needs.
type Quoter interface {
	Quote(ctx context.Context, symbol, currency string) (float64, string, error)
}

// Oracle provides a cached ETH/USD price.
type Oracle struct {
	mu         sync.RWMutex
	quoter     Quoter
	price      float64
	lastUpdate time.Time
	ttl        time.Duration
	fallback   float64
}

// NewOracle creates an oracle with a fallback price and cache TTL
func NewOracle(q Quoter, fallbackPrice float64, cacheTTL time.Duration) *Oracle {
	return &Oracle{
		quoter:   q,
		price:    fallbackPrice,
		fallback: fallbackPrice,
		ttl:      cacheTTL,
	}
}

// ETHUSD returns the current ETH/USD price. A stale cache is refreshed
// through the Binance/CoinGecko chain; on failure the last known price is
// returned and the next call retries.
func (o *Oracle) ETHUSD(ctx context.Context) float64 {
	o.mu.RLock()
	if time.Since(o.lastUpdate) < o.ttl && o.price > 0 {
		price := o.price
		o.mu.RUnlock()
		return price
	}
	o.mu.RUnlock()

	newPrice, _, err := o.quoter.Quote(ctx, "ETH", "USD")
	if err != nil || newPrice <= 0 {
		o.mu.Lock()
		o.lastUpdate = time.Time{}
		price := o.price
		o.mu.Unlock()
		if price > 0 {
			return price
		}
		return o.fallback
	}

	o.mu.Lock()
	o.price = newPrice
	o.lastUpdate = time.Now()
	o.mu.Unlock()

	return newPrice
}

package gateway

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// balanceCache holds free balances per asset. It is fed by signed account
// queries and by outboundAccountPosition user-data events; a short TTL
// keeps the REST path from running on every order.
type balanceCache struct {
	mu        sync.Mutex
	free      map[string]decimal.Decimal
	fetchedAt time.Time
	ttl       time.Duration
}

func newBalanceCache(ttl time.Duration) *balanceCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &balanceCache{
		free: make(map[string]decimal.Decimal),
		ttl:  ttl,
	}
}

func (c *balanceCache) freeBalance(asset string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.free[asset]
	return v, ok
}

func (c *balanceCache) stale(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.fetchedAt) >= c.ttl
}

// replaceAll installs a full account snapshot.
func (c *balanceCache) replaceAll(balances map[string]decimal.Decimal, now time.Time) {
	c.mu.Lock()
	c.free = balances
	c.fetchedAt = now
	c.mu.Unlock()
}

// update patches individual assets from a user-data account position.
func (c *balanceCache) update(asset string, free decimal.Decimal) {
	c.mu.Lock()
	c.free[asset] = free
	c.mu.Unlock()
}

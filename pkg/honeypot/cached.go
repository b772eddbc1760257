package honeypot

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Cached fronts a Checker with a day-long verdict cache and a hard per-check
// timeout. Any failure classifies as Unknown instead of blocking the caller.
type Cached struct {
	inner   Checker
	cache   *expirable.LRU[common.Address, Verdict]
	timeout time.Duration
	log     zerolog.Logger
}

func NewCached(inner Checker, size int, timeout time.Duration, log zerolog.Logger) *Cached {
	return &Cached{
		inner:   inner,
		cache:   expirable.NewLRU[common.Address, Verdict](size, nil, 24*time.Hour),
		timeout: timeout,
		log:     log,
	}
}

// Classify resolves the token's verdict, applying minLiquidity at read time
// so cached verdicts serve every threshold.
func (c *Cached) Classify(ctx context.Context, token common.Address, minLiquidity float64) Result {
	v, ok := c.cache.Get(token)
	if !ok {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		var err error
		v, err = c.inner.Check(ctx, token)
		if err != nil {
			c.log.Warn().Err(err).Stringer("token", token).Msg("honeypot check failed")
			return Unknown
		}
		c.cache.Add(token, v)
	}
	if v.Honeypot {
		return Honeypot
	}
	if v.Liquidity < minLiquidity {
		return LowLiquidity
	}
	return NotHoneypot
}

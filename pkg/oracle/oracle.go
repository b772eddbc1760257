// Package oracle prices tokens, preferring the on-chain spot-rate aggregator
// and falling back to an off-chain USD source when the aggregator has no
// route for a token.
package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/pkg/ledger"
	"github.com/tradewatch/tradewatch/pkg/retry"
)

// RateSource quotes a token's rate to the native currency, 1e18-scaled and
// adjusted for the token's decimals.
type RateSource interface {
	Rate(ctx context.Context, token common.Address, decimals int) (*big.Int, error)
}

// USDSource quotes a token directly in USD. A zero price means unknown.
type USDSource interface {
	PriceUSD(ctx context.Context, token common.Address) (float64, error)
}

// Prices combines both sources behind a short-TTL cache. Quotes older than a
// few minutes are worthless for PNL, so the TTL stays small.
type Prices struct {
	rates    RateSource
	usd      USDSource
	cache    *expirable.LRU[common.Address, *big.Int]
	usdc     *expirable.LRU[common.Address, float64]
	attempts int
	delay    time.Duration
	log      zerolog.Logger
}

func NewPrices(rates RateSource, usd USDSource, size int, log zerolog.Logger) *Prices {
	return &Prices{
		rates:    rates,
		usd:      usd,
		cache:    expirable.NewLRU[common.Address, *big.Int](size, nil, 5*time.Minute),
		usdc:     expirable.NewLRU[common.Address, float64](size, nil, 5*time.Minute),
		attempts: 3,
		delay:    1050 * time.Millisecond,
		log:      log,
	}
}

// PriceETH returns the token's 1e18-scaled rate to the native currency.
func (p *Prices) PriceETH(ctx context.Context, token common.Address, decimals int) (*big.Int, error) {
	if rate, ok := p.cache.Get(token); ok {
		return rate, nil
	}
	rate, err := retry.Do(ctx, p.attempts, p.delay, func(ctx context.Context) (*big.Int, error) {
		return p.rates.Rate(ctx, token, decimals)
	})
	if err != nil {
		return nil, err
	}
	p.cache.Add(token, rate)
	return rate, nil
}

// PriceUSD quotes the token in USD: aggregator rate times the ETH price, or
// the off-chain source when the aggregator fails or has no route. Returns 0
// when no source can price the token.
func (p *Prices) PriceUSD(ctx context.Context, token common.Address, decimals int, ethUSD float64) float64 {
	rate, err := p.PriceETH(ctx, token, decimals)
	if err == nil && rate.Sign() > 0 {
		return ledger.ToFloat(rate, 18) * ethUSD
	}
	if err != nil {
		p.log.Warn().Err(err).Stringer("token", token).Msg("rate aggregator failed, trying usd source")
	}

	if p.usd == nil {
		return 0
	}
	if usd, ok := p.usdc.Get(token); ok {
		return usd
	}
	usd, err := retry.Do(ctx, p.attempts, p.delay, func(ctx context.Context) (float64, error) {
		return p.usd.PriceUSD(ctx, token)
	})
	if err != nil {
		p.log.Warn().Err(err).Stringer("token", token).Msg("usd price lookup failed")
		return 0
	}
	if usd > 0 {
		p.usdc.Add(token, usd)
	}
	return usd
}

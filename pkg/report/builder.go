package report

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tradewatch/tradewatch/pkg/chain"
	"github.com/tradewatch/tradewatch/pkg/honeypot"
	"github.com/tradewatch/tradewatch/pkg/ledger"
	"github.com/tradewatch/tradewatch/pkg/metrics"
)

// Metadata resolves ERC-20 token data and live balances.
type Metadata interface {
	Token(ctx context.Context, token common.Address) (chain.TokenData, error)
	BalanceOf(ctx context.Context, token, wallet common.Address) (*big.Int, error)
}

// PriceSource quotes a token's 1e18-scaled rate to the native currency.
type PriceSource interface {
	PriceETH(ctx context.Context, token common.Address, decimals int) (*big.Int, error)
}

// Classifier is the honeypot verdict lookup.
type Classifier interface {
	Classify(ctx context.Context, token common.Address, minLiquidity float64) honeypot.Result
}

// Builder turns a replayed ledger outcome into a Report. Token lookups fan
// out concurrently; a token whose metadata cannot be fetched is skipped, it
// never fails the whole report.
type Builder struct {
	meta         Metadata
	prices       PriceSource
	honeypots    Classifier
	minLiquidity float64
	log          zerolog.Logger
}

func NewBuilder(meta Metadata, prices PriceSource, honeypots Classifier, minLiquidity float64, log zerolog.Logger) *Builder {
	return &Builder{meta: meta, prices: prices, honeypots: honeypots, minLiquidity: minLiquidity, log: log}
}

// tokenResult is one token's resolved state before the serial metric reduce.
type tokenResult struct {
	skip    bool
	info    TokenInfo
	entry   *ledger.TokenHistory
	verdict honeypot.Result
}

func (b *Builder) Build(ctx context.Context, wallet common.Address, period [2]time.Time, out *ledger.Outcome, ethUSD float64) (*Report, error) {
	tokens := out.History.Tokens()
	results := make([]tokenResult, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range tokens {
		i, entry := i, entry
		g.Go(func() error {
			results[i] = b.resolveToken(gctx, wallet, entry, out, ethUSD)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Report{
		ID:     newID(),
		Wallet: wallet,
		Period: period,
	}

	winRate := metrics.NewAverage(WinRate)
	pnlUSD := metrics.NewAccumulate(PNLUSD)
	pnl2USD := metrics.NewAccumulate(PNL2USD)
	pnlPercent := metrics.NewAverage(PNLAveragePercent)
	pnlPercentClean := metrics.NewAverage(PNLAveragePercentNoHoneypot)

	for _, res := range results {
		if res.skip {
			continue
		}
		entry := res.entry
		percent := entry.ProfitPercent(ethUSD)

		if res.verdict == honeypot.Honeypot {
			// Everything paid into a honeypot is lost no matter what the
			// position looks like on paper.
			res.info.ProfitUSD = -entry.InputUSD(ethUSD)
			res.info.ProfitETH = nil
			r.Honeypots = append(r.Honeypots, res.info)
			pnlUSD.Add(res.info.ProfitUSD)
			pnl2USD.Add(res.info.ProfitUSD)
			if !entry.Multiple() {
				winRate.Add(0)
				pnlPercent.Add(-100)
			}
			continue
		}

		pnlUSD.Add(res.info.ProfitUSD)
		if res.info.Balance == nil {
			pnl2USD.Add(res.info.ProfitUSD)
		}
		if !entry.Multiple() {
			if res.info.ProfitUSD >= 0 {
				winRate.Add(1)
			} else {
				winRate.Add(0)
			}
			pnlPercent.Add(percent)
			pnlPercentClean.Add(percent)
		}
		if res.info.Balance != nil {
			res.info.InWallet = true
			r.TokensInWallet++
		}
		r.Tokens = append(r.Tokens, res.info)
	}

	// Multi-leg settlement flows are realized by definition.
	multiUSD := out.Multi.ProfitUSD(ethUSD)
	pnlUSD.Add(multiUSD)
	pnl2USD.Add(multiUSD)

	sort.Slice(r.Tokens, func(i, j int) bool {
		return r.Tokens[i].ProfitUSD > r.Tokens[j].ProfitUSD
	})

	for _, m := range []metrics.Metric{winRate, pnlUSD, pnl2USD, pnlPercent, pnlPercentClean} {
		r.MetricNames = append(r.MetricNames, m.Name())
		r.MetricValues = append(r.MetricValues, m.Compute())
	}
	r.MetricNames = append(r.MetricNames, AmountOfTokens)
	r.MetricValues = append(r.MetricValues, float64(len(tokens)))
	return r, nil
}

// resolveToken fetches metadata and, for tokens still held, folds the current
// balance valuation into the entry and runs the honeypot check.
func (b *Builder) resolveToken(ctx context.Context, wallet common.Address, entry *ledger.TokenHistory, out *ledger.Outcome, ethUSD float64) tokenResult {
	data, err := b.meta.Token(ctx, entry.Token)
	if err != nil {
		b.log.Warn().Err(err).Stringer("token", entry.Token).Msg("token metadata failed, skipping")
		return tokenResult{skip: true}
	}

	res := tokenResult{
		entry:   entry,
		verdict: honeypot.Unknown,
		info: TokenInfo{
			Token:    entry.Token,
			Symbol:   data.Symbol,
			Decimals: data.Decimals,
		},
	}

	balance := out.Wallet.Balance(entry.Token)
	if balance.Sign() > 0 {
		rate, err := b.prices.PriceETH(ctx, entry.Token, data.Decimals)
		if err != nil {
			b.log.Warn().Err(err).Stringer("token", entry.Token).Msg("price lookup failed, skipping")
			return tokenResult{skip: true}
		}
		priceETH := ledger.ToFloat(rate, 18)
		held := ledger.ToFloat(balance, data.Decimals)
		balanceUSD := priceETH * ethUSD * held

		if balanceUSD > 0 && b.honeypots != nil {
			res.verdict = b.honeypots.Classify(ctx, entry.Token, b.minLiquidity)
			if res.verdict == honeypot.LowLiquidity {
				res.info.LowLiquidity = true
			}
		}

		// Fold what the held tokens are worth into the entry so profit
		// covers the open position too.
		entry.AddBalanceETH(ethFloatToWei(priceETH * held))
		res.info.Balance = &TokenBalance{Value: balance, USD: balanceUSD}
	}

	res.info.ProfitUSD = entry.ProfitUSD(ethUSD)
	if value, x, ok := entry.ProfitETH(); ok {
		res.info.ProfitETH = &ProfitETH{Value: value, X: x}
	}
	return res
}

func ethFloatToWei(eth float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(1e18)).Int(nil)
	return wei
}

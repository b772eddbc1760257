package swaps

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TraceSource recovers native-currency value sent back to the wallet through
// internal calls, invisible to event logs (debug_traceTransaction-equivalent).
type TraceSource interface {
	InternalTransfers(ctx context.Context, tx common.Hash, wallet common.Address) (*big.Int, error)
}

// TxIndex is the explorer-backed fallback used when tracing is unavailable.
type TxIndex interface {
	InternalTransfers(ctx context.Context, tx common.Hash, wallet common.Address) (*big.Int, error)
}

// PairResolver resolves a DEX pair contract to its two constituent tokens.
type PairResolver interface {
	PairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error)
}

// Extractor turns a mined transaction plus receipt into at most one Swap.
// All collaborator failures degrade to "no additional data"; the extractor
// never fails a transaction for a recoverable cause.
type Extractor struct {
	trace TraceSource
	index TxIndex
	pairs PairResolver
	log   zerolog.Logger
}

func NewExtractor(trace TraceSource, index TxIndex, pairs PairResolver, log zerolog.Logger) *Extractor {
	return &Extractor{trace: trace, index: index, pairs: pairs, log: log}
}

// Extract returns the swap performed by tx's sender, or nil when the
// transaction does not classify as a swap.
func (e *Extractor) Extract(ctx context.Context, tx Tx, receipt *types.Receipt) (*Swap, error) {
	if tx.To == (common.Address{}) {
		return nil, nil
	}
	if Routers[tx.To] || Routers[tx.From] {
		s := e.routerSwap(tx, receipt)
		if s == nil {
			return nil, nil
		}
		if !s.SingleLeg() {
			return e.corroborate(ctx, s, receipt)
		}
		return s, nil
	}

	f := e.accumulate(tx, receipt, common.Address{})
	e.log.Trace().Stringer("tx", tx.Hash).Int("tokens", len(f.order)).Msg("token transfers found")
	if f.empty() {
		return nil, nil
	}
	s := f.toSwap(tx, receipt)
	if len(s.TokenIn) == 0 {
		return nil, nil
	}

	// Routerless swaps unwrapping to ETH leave no Transfer log for the wallet;
	// recover that value from the execution trace or the transaction index.
	if recovered := e.recoverNative(ctx, tx); recovered.Sign() > 0 {
		f.get(WETH).out.Add(&f.get(WETH).out, recovered)
		s = f.toSwap(tx, receipt)
	}
	if len(s.TokenIn) == 0 || len(s.TokenOut) == 0 {
		return nil, nil
	}
	if !s.SingleLeg() {
		return e.corroborate(ctx, s, receipt)
	}
	return s, nil
}

// accumulate folds every Transfer log touching the wallet into per-token
// in/out totals. When router is non-zero the wrap-then-forward pattern is
// recognized: a WETH transfer to the router directly after a wallet transfer
// is the unwrap preceding an ETH payout and counts as wallet inflow.
func (e *Extractor) accumulate(tx Tx, receipt *types.Receipt, router common.Address) *flows {
	f := newFlows()
	wallet := addrTopic(tx.From)
	routerTopic := addrTopic(router)
	if tx.Value != nil && tx.Value.Sign() > 0 {
		f.get(WETH).in.Set(tx.Value)
	}
	wasTransfer := false
	for _, l := range receipt.Logs {
		if len(l.Topics) < 3 || l.Topics[0] != TransferTopic {
			continue
		}
		switch {
		case l.Topics[1] == wallet:
			f.get(l.Address).in.Add(&f.get(l.Address).in, transferAmount(l))
			wasTransfer = true
		case l.Topics[2] == wallet:
			f.get(l.Address).out.Add(&f.get(l.Address).out, transferAmount(l))
			wasTransfer = true
		case router != (common.Address{}) && wasTransfer &&
			l.Topics[1] != l.Topics[2] && l.Topics[2] == routerTopic && l.Address == WETH:
			f.get(WETH).out.Add(&f.get(WETH).out, transferAmount(l))
			wasTransfer = false
		}
	}
	return f
}

func (e *Extractor) routerSwap(tx Tx, receipt *types.Receipt) *Swap {
	f := e.accumulate(tx, receipt, tx.To)
	e.log.Trace().Stringer("tx", tx.Hash).Int("tokens", len(f.order)).Msg("token transfers found")
	if f.empty() {
		return nil
	}
	s := f.toSwap(tx, receipt)
	if len(s.TokenIn) == 0 || len(s.TokenOut) == 0 {
		return nil
	}
	return s
}

func (e *Extractor) recoverNative(ctx context.Context, tx Tx) *big.Int {
	if e.trace != nil {
		v, err := e.trace.InternalTransfers(ctx, tx.Hash, tx.From)
		if err == nil {
			return v
		}
		e.log.Warn().Err(err).Stringer("tx", tx.Hash).Msg("trace failed, trying tx index")
	}
	if e.index != nil {
		v, err := e.index.InternalTransfers(ctx, tx.Hash, tx.From)
		if err == nil {
			return v
		}
		e.log.Warn().Err(err).Stringer("tx", tx.Hash).Msg("internal transfer lookup failed")
	}
	return new(big.Int)
}

// corroborate validates a multi-leg swap against the receipt's DEX pair swap
// logs: legs with more than one token keep only tokens that belong to some
// pair that actually swapped. No corroborating pair at all rejects the swap;
// a transient resolution failure leaves it untouched.
func (e *Extractor) corroborate(ctx context.Context, s *Swap, receipt *types.Receipt) (*Swap, error) {
	swapped, ok := e.swappedTokens(ctx, receipt)
	if !ok {
		return s, nil
	}
	if len(s.TokenIn) > 1 {
		s.TokenIn, s.AmountIn = filterLeg(s.TokenIn, s.AmountIn, swapped)
	}
	if len(s.TokenOut) > 1 {
		s.TokenOut, s.AmountOut = filterLeg(s.TokenOut, s.AmountOut, swapped)
	}
	if len(s.TokenIn) == 0 || len(s.TokenOut) == 0 {
		return nil, nil
	}
	return s, nil
}

// swappedTokens resolves every pair contract that emitted a swap log in the
// receipt to its token set. ok is false when any resolution failed.
func (e *Extractor) swappedTokens(ctx context.Context, receipt *types.Receipt) (map[common.Address]bool, bool) {
	if e.pairs == nil {
		return nil, false
	}
	seen := make(map[common.Address]bool)
	var pairsToResolve []common.Address
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		if l.Topics[0] != SwapV2Topic && l.Topics[0] != SwapV3Topic {
			continue
		}
		if !seen[l.Address] {
			seen[l.Address] = true
			pairsToResolve = append(pairsToResolve, l.Address)
		}
	}

	tokens := make(map[common.Address]bool)
	g, ctx := errgroup.WithContext(ctx)
	results := make([][2]common.Address, len(pairsToResolve))
	for i, pair := range pairsToResolve {
		i, pair := i, pair
		g.Go(func() error {
			t0, t1, err := e.pairs.PairTokens(ctx, pair)
			if err != nil {
				return err
			}
			results[i] = [2]common.Address{t0, t1}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Warn().Err(err).Msg("pair token resolution failed")
		return nil, false
	}
	for _, r := range results {
		tokens[r[0]] = true
		tokens[r[1]] = true
	}
	return tokens, true
}

func filterLeg(legTokens []common.Address, amounts []*big.Int, keep map[common.Address]bool) ([]common.Address, []*big.Int) {
	outT := legTokens[:0]
	outA := amounts[:0]
	for i, t := range legTokens {
		if keep[t] {
			outT = append(outT, t)
			outA = append(outA, amounts[i])
		}
	}
	return outT, outA
}

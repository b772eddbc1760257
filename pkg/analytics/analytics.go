// Package analytics builds a wallet's trailing trading report from explorer
// history: list transactions, extract the swaps, replay them through the
// ledger and hand the outcome to the report builder.
package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tradewatch/tradewatch/pkg/chain"
	"github.com/tradewatch/tradewatch/pkg/ledger"
	"github.com/tradewatch/tradewatch/pkg/report"
	"github.com/tradewatch/tradewatch/pkg/swaps"
)

const (
	// Mainnet averages twelve seconds per block.
	avgBlockTime = 12

	periodDays     = 15
	blocksInPeriod = periodDays * 24 * 3600 / avgBlockTime
	blocksInWeek   = 7 * 24 * 3600 / avgBlockTime

	// minCandidates is how many swap-looking transactions the window must
	// hold before we stop widening it into the past.
	minCandidates = 250
	maxStatsWeeks = 14
	maxStatsSpan  = maxStatsWeeks * blocksInWeek
)

// TxLister pages a wallet's outgoing transactions from the explorer.
type TxLister interface {
	TxList(ctx context.Context, address common.Address, startBlock, endBlock uint64) ([]chain.TxRecord, error)
}

// ReceiptSource fetches mined transaction receipts.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// SwapExtractor classifies one mined transaction.
type SwapExtractor interface {
	Extract(ctx context.Context, tx swaps.Tx, receipt *types.Receipt) (*swaps.Swap, error)
}

// EthPricer quotes the native currency in USD.
type EthPricer interface {
	EthPriceUSD(ctx context.Context) (float64, error)
}

// BlockFinder resolves the block mined closest to a timestamp.
type BlockFinder interface {
	FindBlockByTimestamp(ctx context.Context, ts uint64) (uint64, error)
}

type Engine struct {
	txs      TxLister
	receipts ReceiptSource
	extract  SwapExtractor
	replay   *ledger.Engine
	builder  *report.Builder
	prices   EthPricer
	blocks   BlockFinder
	log      zerolog.Logger
}

func NewEngine(txs TxLister, receipts ReceiptSource, extract SwapExtractor, replay *ledger.Engine, builder *report.Builder, prices EthPricer, blocks BlockFinder, log zerolog.Logger) *Engine {
	return &Engine{
		txs:      txs,
		receipts: receipts,
		extract:  extract,
		replay:   replay,
		builder:  builder,
		prices:   prices,
		blocks:   blocks,
		log:      log,
	}
}

// Report replays the wallet's trailing period ending at endBlock. The listing
// window opens at the block mined fifteen days before endTime and widens a
// week at a time into the past until it holds enough swap candidates, capped
// at fourteen weeks.
func (e *Engine) Report(ctx context.Context, wallet common.Address, endBlock uint64, endTime time.Time) (*report.Report, error) {
	cands, err := e.candidates(ctx, wallet, endBlock, endTime)
	if err != nil {
		return nil, err
	}

	seq, err := e.extractAll(ctx, cands)
	if err != nil {
		return nil, err
	}
	e.log.Debug().Stringer("wallet", wallet).
		Int("txs", len(cands)).Int("swaps", len(seq)).Msg("history extracted")

	out := e.replay.Replay(seq)
	ethUSD, err := e.prices.EthPriceUSD(ctx)
	if err != nil {
		return nil, err
	}
	period := [2]time.Time{endTime.Add(-periodDays * 24 * time.Hour), endTime}
	return e.builder.Build(ctx, wallet, period, out, ethUSD)
}

func (e *Engine) candidates(ctx context.Context, wallet common.Address, endBlock uint64, endTime time.Time) ([]chain.TxRecord, error) {
	start := e.periodStart(ctx, endBlock, endTime)
	rows, err := e.txs.TxList(ctx, wallet, start, endBlock)
	if err != nil {
		return nil, err
	}
	cands := filterCandidates(rows)

	for len(cands) < minCandidates && endBlock-start < maxStatsSpan && start > 0 {
		prev := start
		start = clampSub(start, blocksInWeek)
		more, err := e.txs.TxList(ctx, wallet, start, prev-1)
		if err != nil {
			return nil, err
		}
		cands = append(filterCandidates(more), cands...)
	}
	return cands, nil
}

// periodStart resolves the block opening the trailing period from its
// timestamp, falling back to the average-blocktime approximation when the
// chain lookup fails.
func (e *Engine) periodStart(ctx context.Context, endBlock uint64, endTime time.Time) uint64 {
	from := endTime.AddDate(0, 0, -periodDays)
	block, err := e.blocks.FindBlockByTimestamp(ctx, uint64(from.Unix()))
	if err != nil {
		e.log.Warn().Err(err).Msg("period start lookup failed")
		return clampSub(endBlock, blocksInPeriod)
	}
	if block >= endBlock {
		return clampSub(endBlock, blocksInPeriod)
	}
	return block
}

// extractAll resolves receipts and swaps concurrently, keeping block order.
// A failed receipt fetch drops that transaction rather than the report.
func (e *Engine) extractAll(ctx context.Context, cands []chain.TxRecord) ([]*swaps.Swap, error) {
	found := make([]*swaps.Swap, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for i, row := range cands {
		i, row := i, row
		g.Go(func() error {
			receipt, err := e.receipts.TransactionReceipt(gctx, row.Hash)
			if err != nil {
				e.log.Warn().Err(err).Stringer("tx", row.Hash).Msg("receipt fetch failed")
				return nil
			}
			tx := swaps.Tx{
				Hash:        row.Hash,
				From:        row.From,
				To:          row.To,
				Value:       row.Value,
				BlockNumber: row.BlockNumber,
			}
			swap, err := e.extract.Extract(gctx, tx, receipt)
			if err != nil {
				return nil
			}
			found[i] = swap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seq := found[:0]
	for _, s := range found {
		if s != nil {
			seq = append(seq, s)
		}
	}
	return seq, nil
}

// filterCandidates drops rows that cannot be swaps: failed transactions,
// plain value transfers and approvals.
func filterCandidates(rows []chain.TxRecord) []chain.TxRecord {
	var out []chain.TxRecord
	for _, row := range rows {
		if !row.Success || row.MethodID == "0x" {
			continue
		}
		if strings.HasPrefix(row.FunctionName, "approve(") {
			continue
		}
		out = append(out, row)
	}
	return out
}

func clampSub(block uint64, delta uint64) uint64 {
	if block < delta {
		return 0
	}
	return block - delta
}

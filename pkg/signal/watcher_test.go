package signal

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/tradewatch/pkg/report"
	"github.com/tradewatch/tradewatch/pkg/swaps"
)

var wallet3 = common.HexToAddress("0x1000000000000000000000000000000000000003")

type stubChain struct {
	txs   map[uint64][]swaps.Tx
	heads chan *types.Header
}

func (s *stubChain) SubscribeNewBlocks(context.Context) (<-chan *types.Header, error) {
	return s.heads, nil
}

func (s *stubChain) BlockTxs(_ context.Context, number *big.Int) ([]swaps.Tx, uint64, error) {
	return s.txs[number.Uint64()], 1700000000 + number.Uint64()*12, nil
}

func (s *stubChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Logs: make([]*types.Log, 3)}, nil
}

type stubExtractor struct {
	swaps map[common.Hash]*swaps.Swap
}

func (s *stubExtractor) Extract(_ context.Context, tx swaps.Tx, _ *types.Receipt) (*swaps.Swap, error) {
	return s.swaps[tx.Hash], nil
}

type stubReporter struct {
	calls int
}

func (s *stubReporter) Report(context.Context, common.Address, uint64, time.Time) (*report.Report, error) {
	s.calls++
	return passingReport(), nil
}

type fixture struct {
	watcher *Watcher
	chain   *stubChain
	extract *stubExtractor
	reports *stubReporter
	signals *[]Signal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chain := &stubChain{txs: map[uint64][]swaps.Tx{}}
	extract := &stubExtractor{swaps: map[common.Hash]*swaps.Swap{}}
	reports := &stubReporter{}
	signals := &[]Signal{}
	cfg := Config{
		WindowBlocks:  5,
		SignalWallets: 3,
		MinNative:     big.NewInt(3e18),
		MinStableUSD:  5000,
		ReportCache:   100,
		Thresholds:    testThresholds(),
	}
	w := NewWatcher(chain, extract, reports, cfg, func(s Signal) {
		*signals = append(*signals, s)
	}, zerolog.Nop())
	for _, wallet := range []common.Address{wallet1, wallet2, wallet3} {
		w.Follow(wallet.Hex(), 1)
	}
	return &fixture{watcher: w, chain: chain, extract: extract, reports: reports, signals: signals}
}

// addBuy wires a transaction in the given block where wallet buys token with
// ethIn ether.
func (f *fixture) addBuy(block uint64, wallet common.Address, token common.Address, ethIn int64) {
	hash := common.BigToHash(big.NewInt(int64(block)<<32 | int64(len(f.extract.swaps))))
	f.chain.txs[block] = append(f.chain.txs[block], swaps.Tx{
		Hash: hash, From: wallet, To: common.HexToAddress("0xdead"), BlockNumber: block,
	})
	f.extract.swaps[hash] = &swaps.Swap{
		Wallet:    wallet,
		Fee:       new(big.Int),
		TokenIn:   []common.Address{swaps.WETH},
		TokenOut:  []common.Address{token},
		AmountIn:  []*big.Int{new(big.Int).Mul(big.NewInt(ethIn), big.NewInt(1e18))},
		AmountOut: []*big.Int{big.NewInt(1000)},
	}
}

func (f *fixture) run(blocks ...uint64) {
	for _, b := range blocks {
		f.watcher.processBlock(context.Background(), new(big.Int).SetUint64(b))
	}
}

func TestWatcherMajorSignal(t *testing.T) {
	f := newFixture(t)
	f.addBuy(1, wallet1, tokenA, 5)
	f.addBuy(2, wallet2, tokenA, 5)
	f.addBuy(3, wallet3, tokenA, 5)
	f.run(1, 2, 3)

	var majors []Signal
	for _, s := range *f.signals {
		if s.Major {
			majors = append(majors, s)
		}
	}
	require.Len(t, majors, 1)
	assert.Equal(t, tokenA, majors[0].Token)
	assert.Len(t, majors[0].Wallets, 3)

	// Consumption: the next block must not re-raise the signal.
	seen := len(*f.signals)
	f.run(4)
	assert.Len(t, *f.signals, seen)
}

func TestWatcherMinorSignal(t *testing.T) {
	f := newFixture(t)
	f.addBuy(1, wallet1, tokenA, 5)
	f.addBuy(2, wallet2, tokenA, 5)
	f.run(1, 2)

	require.NotEmpty(t, *f.signals)
	last := (*f.signals)[len(*f.signals)-1]
	assert.False(t, last.Major)
	assert.Len(t, last.Wallets, 2)
	assert.Equal(t, 2, f.watcher.window.Alive(tokenA), "minor signals leave the window untouched")
}

func TestWatcherSameWalletCountsOnce(t *testing.T) {
	f := newFixture(t)
	f.addBuy(1, wallet1, tokenA, 5)
	f.addBuy(2, wallet1, tokenA, 5)
	f.addBuy(3, wallet1, tokenA, 5)
	f.run(1, 2, 3)

	for _, s := range *f.signals {
		assert.False(t, s.Major, "one wallet must never trigger a major signal")
	}
}

func TestWatcherIgnoresUnfollowed(t *testing.T) {
	f := newFixture(t)
	stranger := common.HexToAddress("0x9999999999999999999999999999999999999999")
	f.addBuy(1, stranger, tokenA, 50)
	f.run(1)

	assert.Empty(t, *f.signals)
	assert.Equal(t, 0, f.reports.calls)
}

func TestWatcherIgnoresSmallBuys(t *testing.T) {
	f := newFixture(t)
	f.addBuy(1, wallet1, tokenA, 1) // below the 3 ETH floor
	f.run(1)

	assert.Equal(t, 0, f.watcher.window.Alive(tokenA))
	assert.Equal(t, 0, f.reports.calls)
}

func TestWatcherReportsCached(t *testing.T) {
	f := newFixture(t)
	f.addBuy(1, wallet1, tokenA, 5)
	f.addBuy(2, wallet1, tokenB, 5)
	f.run(1, 2)

	assert.Equal(t, 1, f.reports.calls, "second buy reuses the cached report")
}

func TestWatcherRunReportsDroppedFeed(t *testing.T) {
	f := newFixture(t)
	f.chain.heads = make(chan *types.Header)

	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(context.Background()) }()

	f.chain.heads <- &types.Header{Number: big.NewInt(1)}
	close(f.chain.heads)
	assert.ErrorIs(t, <-done, ErrFeedClosed)
}

func TestWatcherRunReturnsCancellation(t *testing.T) {
	f := newFixture(t)
	f.chain.heads = make(chan *types.Header)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()

	cancel()
	close(f.chain.heads)
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherWindowExpiry(t *testing.T) {
	f := newFixture(t)
	f.addBuy(1, wallet1, tokenA, 5)
	f.addBuy(2, wallet2, tokenA, 5)
	// wallet3 arrives after the first two entries rotated out.
	f.addBuy(9, wallet3, tokenA, 5)
	f.run(1, 2, 3, 4, 5, 6, 7, 8, 9)

	for _, s := range *f.signals {
		assert.False(t, s.Major)
	}
}

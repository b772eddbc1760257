package signal

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tradewatch/tradewatch/pkg/ledger"
	"github.com/tradewatch/tradewatch/pkg/report"
	"github.com/tradewatch/tradewatch/pkg/swaps"
	"github.com/tradewatch/tradewatch/pkg/trie"
)

// ChainSource is the node surface the watcher consumes.
type ChainSource interface {
	SubscribeNewBlocks(ctx context.Context) (<-chan *types.Header, error)
	BlockTxs(ctx context.Context, number *big.Int) ([]swaps.Tx, uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Extractor classifies one mined transaction.
type Extractor interface {
	Extract(ctx context.Context, tx swaps.Tx, receipt *types.Receipt) (*swaps.Swap, error)
}

// Reporter builds a wallet's trailing-period report ending at the given
// block.
type Reporter interface {
	Report(ctx context.Context, wallet common.Address, endBlock uint64, endTime time.Time) (*report.Report, error)
}

type Config struct {
	WindowBlocks  int
	SignalWallets int
	// MinNative and MinStableUSD gate how large a buy must be to count,
	// in wei and whole stablecoin units respectively.
	MinNative    *big.Int
	MinStableUSD int64
	ReportCache  int
	Thresholds   Thresholds
}

// Signal is raised when distinct qualified wallets pile into one token.
// Major signals consume their window entries; minor ones fire at one wallet
// short of the threshold and leave the window untouched.
type Signal struct {
	Token   common.Address
	Major   bool
	Wallets []*Entry
}

type Watcher struct {
	chain    ChainSource
	extract  Extractor
	reports  Reporter
	cfg      Config
	onSignal func(Signal)
	log      zerolog.Logger

	tmu     sync.RWMutex
	follows *trie.Trie

	wmu     sync.Mutex
	window  *Window
	touched map[common.Address]bool

	cache    *expirable.LRU[common.Address, *report.Report]
	imu      sync.Mutex
	inflight map[common.Address]bool
}

func NewWatcher(chain ChainSource, extract Extractor, reports Reporter, cfg Config, onSignal func(Signal), log zerolog.Logger) *Watcher {
	return &Watcher{
		chain:    chain,
		extract:  extract,
		reports:  reports,
		cfg:      cfg,
		onSignal: onSignal,
		log:      log,
		follows:  trie.New(),
		window:   NewWindow(cfg.WindowBlocks),
		touched:  make(map[common.Address]bool),
		cache:    expirable.NewLRU[common.Address, *report.Report](cfg.ReportCache, nil, 24*time.Hour),
		inflight: make(map[common.Address]bool),
	}
}

// Follow registers a wallet address for id.
func (w *Watcher) Follow(address string, id int64) {
	w.tmu.Lock()
	w.follows.Add(address, id)
	w.tmu.Unlock()
}

func (w *Watcher) Unfollow(address string, id int64) {
	w.tmu.Lock()
	w.follows.Remove(address, id)
	w.tmu.Unlock()
}

// ErrFeedClosed reports that the head subscription ended on its own rather
// than by cancellation.
var ErrFeedClosed = errors.New("block feed closed")

// Run consumes the block stream until ctx is cancelled. Per-transaction work
// fans out concurrently; the window only advances once the whole block is
// processed.
func (w *Watcher) Run(ctx context.Context) error {
	heads, err := w.chain.SubscribeNewBlocks(ctx)
	if err != nil {
		return err
	}
	for head := range heads {
		start := time.Now()
		w.processBlock(ctx, head.Number)
		w.log.Info().Uint64("block", head.Number.Uint64()).
			Dur("took", time.Since(start)).Msg("block processed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrFeedClosed
}

func (w *Watcher) processBlock(ctx context.Context, number *big.Int) {
	txs, ts, err := w.chain.BlockTxs(ctx, number)
	if err != nil {
		w.log.Warn().Err(err).Stringer("block", number).Msg("block fetch failed")
		return
	}
	blockTime := time.Unix(int64(ts), 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, tx := range txs {
		tx := tx
		g.Go(func() error {
			w.processTx(gctx, tx, blockTime)
			return nil
		})
	}
	g.Wait()

	w.wmu.Lock()
	defer w.wmu.Unlock()
	w.window.Advance()
	for token := range w.touched {
		w.evaluate(token)
		delete(w.touched, token)
	}
}

// evaluate raises a major signal when the distinct-wallet count reaches the
// threshold, or a minor one when a single wallet short. Called with the
// window lock held.
func (w *Watcher) evaluate(token common.Address) {
	distinct := w.window.DistinctWallets(token)
	switch {
	case len(distinct) >= w.cfg.SignalWallets:
		entries := w.window.Consume(token)
		w.log.Info().Stringer("token", token).Int("wallets", len(entries)).Msg("signal")
		w.onSignal(Signal{Token: token, Major: true, Wallets: entries})
	case len(distinct) == w.cfg.SignalWallets-1:
		w.onSignal(Signal{Token: token, Major: false, Wallets: distinct})
	}
}

func (w *Watcher) processTx(ctx context.Context, tx swaps.Tx, blockTime time.Time) {
	w.tmu.RLock()
	ids := w.follows.Get(tx.From.Hex())
	w.tmu.RUnlock()
	if len(ids) == 0 {
		return
	}

	receipt, err := w.chain.TransactionReceipt(ctx, tx.Hash)
	if err != nil {
		w.log.Debug().Err(err).Stringer("tx", tx.Hash).Msg("receipt fetch failed")
		return
	}
	// Plain transfers and approvals never reach three logs.
	if len(receipt.Logs) < 3 {
		return
	}

	swap, err := w.extract.Extract(ctx, tx, receipt)
	if err != nil || swap == nil {
		return
	}
	if len(swap.TokenIn) != 1 {
		return
	}
	in := ledger.AssetOf(swap.TokenIn[0])
	if in == ledger.None || !w.bigEnough(in, swap.AmountIn[0]) {
		return
	}
	var bought []int
	for i, t := range swap.TokenOut {
		if ledger.AssetOf(t) == ledger.None {
			bought = append(bought, i)
		}
	}
	if len(bought) == 0 {
		return
	}

	rep, ok := w.walletReport(ctx, tx.From, tx.BlockNumber, blockTime)
	if !ok {
		return
	}
	if reason, ok := w.cfg.Thresholds.Check(rep); !ok {
		w.log.Debug().Stringer("wallet", tx.From).Str("rule", reason).Msg("wallet filtered out")
		return
	}

	w.wmu.Lock()
	defer w.wmu.Unlock()
	for _, i := range bought {
		w.window.Add(&Entry{
			Token:  swap.TokenOut[i],
			Wallet: tx.From,
			Amount: swap.AmountOut[i],
			Report: rep,
			Time:   blockTime,
			Reason: in.String() + " buy",
		})
		w.touched[swap.TokenOut[i]] = true
	}
}

func (w *Watcher) bigEnough(a ledger.Asset, amount *big.Int) bool {
	if a == ledger.Native {
		return amount.Cmp(w.cfg.MinNative) >= 0
	}
	min := new(big.Int).Mul(
		big.NewInt(w.cfg.MinStableUSD),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.Decimals())), nil),
	)
	return amount.Cmp(min) >= 0
}

// walletReport resolves the wallet's cached report or builds one. A wallet
// already being analyzed by another transaction is skipped, not awaited.
func (w *Watcher) walletReport(ctx context.Context, wallet common.Address, endBlock uint64, endTime time.Time) (*report.Report, bool) {
	if rep, ok := w.cache.Get(wallet); ok {
		return rep, true
	}

	w.imu.Lock()
	if w.inflight[wallet] {
		w.imu.Unlock()
		return nil, false
	}
	w.inflight[wallet] = true
	w.imu.Unlock()
	defer func() {
		w.imu.Lock()
		delete(w.inflight, wallet)
		w.imu.Unlock()
	}()

	rep, err := w.reports.Report(ctx, wallet, endBlock, endTime)
	if err != nil {
		w.log.Warn().Err(err).Stringer("wallet", wallet).Msg("report failed")
		return nil, false
	}
	w.cache.Add(wallet, rep)
	return rep, true
}

// Package chain wraps an EVM JSON-RPC endpoint behind the narrow interfaces
// the extraction and reporting code depends on: receipts, block transactions,
// execution traces, pair and token metadata, and the on-chain rate aggregator.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/pkg/swaps"
)

// Known function selectors.
var (
	selSymbol    = []byte{0x95, 0xd8, 0x9b, 0x41} // symbol()
	selDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
	selBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	selToken0    = []byte{0x0d, 0xfe, 0x16, 0x81} // token0()
	selToken1    = []byte{0xd2, 0x12, 0x20, 0xa7} // token1()

	selRateToEth = crypto.Keccak256([]byte("getRateToEth(address,bool)"))[:4]
)

// 1inch spot price aggregator.
var rateAggregator = common.HexToAddress("0x07D91f5fb9Bf7798734C3f606dB065549F6893bb")

// TokenData is ERC-20 metadata resolved once per token.
type TokenData struct {
	Symbol   string
	Decimals int
}

type Client struct {
	eth    *ethclient.Client
	rpc    *rpc.Client
	signer types.Signer

	pairs  *lru.Cache[common.Address, [2]common.Address]
	tokens *lru.Cache[common.Address, TokenData]
	log    zerolog.Logger
}

func Dial(ctx context.Context, url string, log zerolog.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	eth := ethclient.NewClient(rc)
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	pairs, _ := lru.New[common.Address, [2]common.Address](2048)
	tokens, _ := lru.New[common.Address, TokenData](2048)
	log.Info().Str("url", url).Uint64("chain", chainID.Uint64()).Msg("connected to rpc")
	return &Client{
		eth:    eth,
		rpc:    rc,
		signer: types.LatestSignerForChainID(chainID),
		pairs:  pairs,
		tokens: tokens,
		log:    log,
	}, nil
}

func (c *Client) Close() { c.rpc.Close() }

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, number)
}

// BlockTxs returns the block's transactions in the reduced form the
// extractor consumes, plus the block timestamp. Transactions whose sender
// cannot be recovered are skipped.
func (c *Client) BlockTxs(ctx context.Context, number *big.Int) ([]swaps.Tx, uint64, error) {
	block, err := c.eth.BlockByNumber(ctx, number)
	if err != nil {
		return nil, 0, err
	}
	txs := make([]swaps.Tx, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		from, err := types.Sender(c.signer, tx)
		if err != nil {
			continue
		}
		to := common.Address{}
		if tx.To() != nil {
			to = *tx.To()
		}
		txs = append(txs, swaps.Tx{
			Hash:        tx.Hash(),
			From:        from,
			To:          to,
			Value:       tx.Value(),
			BlockNumber: block.NumberU64(),
		})
	}
	return txs, block.Time(), nil
}

// SubscribeNewBlocks delivers new block headers, preferring a native
// subscription and falling back to polling on HTTP transports.
func (c *Client) SubscribeNewBlocks(ctx context.Context) (<-chan *types.Header, error) {
	heads := make(chan *types.Header, 16)
	sub, err := c.eth.SubscribeNewHead(ctx, heads)
	if err == nil {
		go func() {
			defer close(heads)
			select {
			case <-ctx.Done():
			case err := <-sub.Err():
				c.log.Error().Err(err).Msg("head subscription dropped")
			}
			sub.Unsubscribe()
		}()
		return heads, nil
	}

	c.log.Warn().Err(err).Msg("head subscription unsupported, polling")
	go c.pollHeads(ctx, heads)
	return heads, nil
}

func (c *Client) pollHeads(ctx context.Context, heads chan<- *types.Header) {
	defer close(heads)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := c.eth.BlockNumber(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("block number poll failed")
			continue
		}
		if last == 0 {
			last = n - 1
		}
		for b := last + 1; b <= n; b++ {
			head, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(b))
			if err != nil {
				break
			}
			select {
			case heads <- head:
			case <-ctx.Done():
				return
			}
			last = b
		}
	}
}

// callFrame is the callTracer node shape.
type callFrame struct {
	Type  string         `json:"type"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Calls []callFrame    `json:"calls"`
}

// InternalTransfers traces tx and sums every internal CALL value sent back to
// wallet. Those transfers never show in logs; they are how routers pay out
// unwrapped ETH.
func (c *Client) InternalTransfers(ctx context.Context, tx common.Hash, wallet common.Address) (*big.Int, error) {
	var frame callFrame
	err := c.rpc.CallContext(ctx, &frame, "debug_traceTransaction", tx,
		map[string]interface{}{"tracer": "callTracer"})
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	sumCallsTo(&frame, wallet, total)
	return total, nil
}

func sumCallsTo(f *callFrame, wallet common.Address, total *big.Int) {
	if f.Type == "CALL" && f.To == wallet && f.Value != nil {
		total.Add(total, (*big.Int)(f.Value))
	}
	for i := range f.Calls {
		sumCallsTo(&f.Calls[i], wallet, total)
	}
}

// PairTokens resolves a DEX pair contract to its token0/token1, cached
// forever; pair composition is immutable.
func (c *Client) PairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error) {
	if t, ok := c.pairs.Get(pair); ok {
		return t[0], t[1], nil
	}
	t0, err := c.callAddress(ctx, pair, selToken0)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0 of %s: %w", pair, err)
	}
	t1, err := c.callAddress(ctx, pair, selToken1)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1 of %s: %w", pair, err)
	}
	c.pairs.Add(pair, [2]common.Address{t0, t1})
	return t0, t1, nil
}

// Token resolves ERC-20 symbol and decimals, cached. Missing metadata
// degrades to UNKNOWN/18 only when the contract answers at all.
func (c *Client) Token(ctx context.Context, token common.Address) (TokenData, error) {
	if d, ok := c.tokens.Get(token); ok {
		return d, nil
	}
	raw, err := c.call(ctx, token, selSymbol)
	if err != nil {
		return TokenData{}, fmt.Errorf("symbol of %s: %w", token, err)
	}
	data := TokenData{Symbol: decodeString(raw), Decimals: 18}
	if data.Symbol == "" {
		data.Symbol = "UNKNOWN"
	}
	if raw, err = c.call(ctx, token, selDecimals); err == nil {
		if d := decodeUint(raw); d > 0 && d <= 36 {
			data.Decimals = int(d)
		}
	}
	c.tokens.Add(token, data)
	return data, nil
}

// BalanceOf reads the wallet's current token balance.
func (c *Client) BalanceOf(ctx context.Context, token, wallet common.Address) (*big.Int, error) {
	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(wallet.Bytes(), 32)...)
	raw, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// Rate quotes token against the native currency through the on-chain spot
// price aggregator, 1e18-scaled and adjusted for the token's decimals.
func (c *Client) Rate(ctx context.Context, token common.Address, decimals int) (*big.Int, error) {
	data := append([]byte{}, selRateToEth...)
	data = append(data, common.LeftPadBytes(token.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes([]byte{1}, 32)...) // useWrappers = true
	raw, err := c.call(ctx, rateAggregator, data)
	if err != nil {
		return nil, err
	}
	rate := new(big.Int).SetBytes(raw)
	if decimals < 18 {
		rate.Quo(rate, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil))
	}
	return rate, nil
}

// headerSource is the lookup surface the timestamp search needs.
type headerSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// FindBlockByTimestamp locates the block closest to ts by interpolating over
// block timestamps instead of bisecting blindly.
func (c *Client) FindBlockByTimestamp(ctx context.Context, ts uint64) (uint64, error) {
	return findBlockByTimestamp(ctx, c.eth, ts)
}

func findBlockByTimestamp(ctx context.Context, src headerSource, ts uint64) (uint64, error) {
	latest, err := src.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	lo, hi := uint64(1), latest.Number.Uint64()
	first, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(lo))
	if err != nil {
		return 0, err
	}
	tLo, tHi := first.Time, latest.Time

	for {
		if ts >= tHi {
			return hi, nil
		}
		if ts <= tLo {
			return lo, nil
		}
		// ts sits strictly inside a degenerate span, nothing to interpolate on.
		if hi <= lo || tHi <= tLo {
			return hi, nil
		}
		avg := float64(tHi-tLo) / float64(hi-lo)
		k := float64(ts-tLo) / float64(tHi-tLo)
		guess := lo + uint64(k*float64(hi-lo))
		head, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(guess))
		if err != nil {
			return 0, err
		}
		var off int64
		if ts >= head.Time {
			off = int64(float64(ts-head.Time) / avg)
		} else {
			off = -int64(float64(head.Time-ts) / avg)
		}
		if off == 0 {
			return guess, nil
		}
		mid := int64(guess) + off
		r := off
		if r < 0 {
			r = -r
		}
		lo, hi = clampBlock(mid-r, latest.Number.Uint64()), clampBlock(mid+r, latest.Number.Uint64())
		loHead, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(lo))
		if err != nil {
			return 0, err
		}
		hiHead, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(hi))
		if err != nil {
			return 0, err
		}
		tLo, tHi = loHead.Time, hiHead.Time
	}
}

func clampBlock(n int64, latest uint64) uint64 {
	if n < 1 {
		return 1
	}
	if uint64(n) > latest {
		return latest
	}
	return uint64(n)
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *Client) callAddress(ctx context.Context, to common.Address, sel []byte) (common.Address, error) {
	raw, err := c.call(ctx, to, sel)
	if err != nil {
		return common.Address{}, err
	}
	if len(raw) < 32 {
		return common.Address{}, fmt.Errorf("short address result (%d bytes)", len(raw))
	}
	return common.BytesToAddress(raw[12:32]), nil
}

// decodeString parses an ABI string result, tolerating the legacy bytes32
// form some old tokens return.
func decodeString(data []byte) string {
	if len(data) < 64 {
		end := len(data)
		for end > 0 && data[end-1] == 0 {
			end--
		}
		s := string(data[:end])
		for _, ch := range s {
			if ch < 32 || ch > 126 {
				return ""
			}
		}
		return s
	}
	offset := new(big.Int).SetBytes(data[:32]).Int64()
	if offset+32 > int64(len(data)) {
		return ""
	}
	length := new(big.Int).SetBytes(data[offset : offset+32]).Int64()
	if offset+32+length > int64(len(data)) || length > 100 {
		return ""
	}
	return string(data[offset+32 : offset+32+length])
}

func decodeUint(data []byte) int64 {
	return new(big.Int).SetBytes(data).Int64()
}

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradewatch/tradewatch/pkg/swaps"
)

// assetFlow tracks one settlement asset inside a token's history. balance is
// the signed net flow (negative while the position is open), input and output
// the cumulative gross amounts, inputs the sample count behind the mean.
type assetFlow struct {
	balance big.Int
	input   big.Int
	output  big.Int
	inputs  int
}

// TokenHistory is the cost-basis record of one non-settlement token.
type TokenHistory struct {
	Token    common.Address
	flows    [numAssets]assetFlow
	multiple bool
}

func NewTokenHistory(token common.Address) *TokenHistory {
	return &TokenHistory{Token: token}
}

// Deposit records a buy: amount of asset a was paid to acquire the token.
func (h *TokenHistory) Deposit(a Asset, amount *big.Int) {
	f := &h.flows[a]
	f.balance.Sub(&f.balance, amount)
	f.input.Add(&f.input, amount)
	f.inputs++
}

// Withdraw records a sell: amount of asset a came back for the token.
func (h *TokenHistory) Withdraw(a Asset, amount *big.Int) {
	f := &h.flows[a]
	f.balance.Add(&f.balance, amount)
	f.output.Add(&f.output, amount)
}

func (h *TokenHistory) Input(a Asset) *big.Int {
	return new(big.Int).Set(&h.flows[a].input)
}

func (h *TokenHistory) Output(a Asset) *big.Int {
	return new(big.Int).Set(&h.flows[a].output)
}

// MeanInput is the simple mean of the recorded buy amounts for asset a.
func (h *TokenHistory) MeanInput(a Asset) *big.Int {
	f := &h.flows[a]
	if f.inputs == 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(&f.input, big.NewInt(int64(f.inputs)))
}

// MarkMultiple flags the token as part of a multi-leg swap, excluding it from
// single-token win-rate and percent statistics.
func (h *TokenHistory) MarkMultiple() { h.multiple = true }

func (h *TokenHistory) Multiple() bool { return h.multiple }

// AddBalanceETH folds a wei valuation of tokens still held into the native
// flow, turning realized profit into total profit.
func (h *TokenHistory) AddBalanceETH(wei *big.Int) {
	f := &h.flows[Native]
	f.balance.Add(&f.balance, wei)
}

// ProfitUSD values the signed settlement flows in USD at the given ETH price.
func (h *TokenHistory) ProfitUSD(ethUSD float64) float64 {
	total := 0.0
	for _, a := range SettlementAssets {
		v := ToFloat(&h.flows[a].balance, a.Decimals())
		if a == Native {
			v *= ethUSD
		}
		total += v
	}
	return total
}

// InputUSD values the cumulative buy amounts in USD.
func (h *TokenHistory) InputUSD(ethUSD float64) float64 {
	total := 0.0
	for _, a := range SettlementAssets {
		v := ToFloat(&h.flows[a].input, a.Decimals())
		if a == Native {
			v *= ethUSD
		}
		total += v
	}
	return total
}

// ProfitETH is the native-only shortcut: when every settlement flow besides
// ETH is untouched the profit can be stated directly in ether, with a
// multiplier relative to the invested amount. ok is false otherwise.
func (h *TokenHistory) ProfitETH() (value, x float64, ok bool) {
	eth := &h.flows[Native]
	if eth.balance.Sign() == 0 {
		return 0, 0, false
	}
	for _, a := range SettlementAssets {
		if a != Native && h.flows[a].balance.Sign() != 0 {
			return 0, 0, false
		}
	}
	value = ToFloat(&eth.balance, Native.Decimals())
	if eth.balance.Sign() > 0 && eth.input.Sign() > 0 {
		x = 1.0 + ToFloat(&eth.balance, 18)/ToFloat(&eth.input, 18)
	}
	return value, x, true
}

// ProfitPercent is 100 * profit / input in USD terms, 0 when nothing was
// ever paid in.
func (h *TokenHistory) ProfitPercent(ethUSD float64) float64 {
	input := h.InputUSD(ethUSD)
	if input == 0 {
		return 0
	}
	return 100 * h.ProfitUSD(ethUSD) / input
}

// History keys TokenHistory entries by token, preserving first-touch order.
type History struct {
	order   []common.Address
	entries map[common.Address]*TokenHistory
}

func NewHistory() *History {
	return &History{entries: make(map[common.Address]*TokenHistory)}
}

func (h *History) entry(token common.Address) *TokenHistory {
	e, ok := h.entries[token]
	if !ok {
		e = NewTokenHistory(token)
		h.entries[token] = e
		h.order = append(h.order, token)
	}
	return e
}

// Push applies a single-leg swap. Buys deposit into the bought token's entry,
// sells withdraw into the sold token's entry; token-to-token swaps only
// ensure the sold token is tracked.
func (h *History) Push(s *swaps.Swap) {
	in, out := s.TokenIn[0], s.TokenOut[0]
	switch {
	case AssetOf(in) != None:
		if AssetOf(out) != None {
			return
		}
		h.entry(out).Deposit(AssetOf(in), s.AmountIn[0])
	case AssetOf(out) != None:
		h.entry(in).Withdraw(AssetOf(out), s.AmountOut[0])
	default:
		h.entry(in)
	}
}

// MarkMultiple flags token's entry, creating it when absent.
func (h *History) MarkMultiple(token common.Address) {
	h.entry(token).MarkMultiple()
}

// Pop removes and returns the token's entry, nil when absent.
func (h *History) Pop(token common.Address) *TokenHistory {
	e, ok := h.entries[token]
	if !ok {
		return nil
	}
	delete(h.entries, token)
	for i, t := range h.order {
		if t == token {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return e
}

func (h *History) Token(token common.Address) *TokenHistory {
	return h.entries[token]
}

// Tokens returns the entries in first-touch order.
func (h *History) Tokens() []*TokenHistory {
	out := make([]*TokenHistory, 0, len(h.order))
	for _, t := range h.order {
		out = append(out, h.entries[t])
	}
	return out
}

func (h *History) Len() int { return len(h.entries) }

package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/tradewatch/tradewatch/pkg/swaps"
)

var (
	tokenX = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenY = common.HexToAddress("0x1000000000000000000000000000000000000002")
)

func ethWei(f float64) *big.Int {
	v, _ := new(big.Float).Mul(big.NewFloat(f), big.NewFloat(1e18)).Int(nil)
	return v
}

func singleLeg(in common.Address, amountIn *big.Int, out common.Address, amountOut *big.Int) *swaps.Swap {
	return &swaps.Swap{
		Wallet:    common.HexToAddress("0x1"),
		Fee:       new(big.Int),
		TokenIn:   []common.Address{in},
		TokenOut:  []common.Address{out},
		AmountIn:  []*big.Int{amountIn},
		AmountOut: []*big.Int{amountOut},
	}
}

func TestWalletZeroDeltaNoOp(t *testing.T) {
	w := NewWallet()
	w.Deposit(tokenX, new(big.Int))
	w.Withdraw(tokenX, new(big.Int))
	assert.Nil(t, w.RemoveToken(tokenX), "zero deltas must not create entries")
}

func TestWalletHasBalance(t *testing.T) {
	w := NewWallet()
	assert.True(t, w.HasBalance(tokenX, new(big.Int)), "zero is always satisfiable")
	assert.False(t, w.HasBalance(tokenX, big.NewInt(1)))

	w.Deposit(tokenX, big.NewInt(100))
	assert.True(t, w.HasBalance(tokenX, big.NewInt(100)))
	assert.False(t, w.HasBalance(tokenX, big.NewInt(101)))
}

func TestWalletRemoveToken(t *testing.T) {
	w := NewWallet()
	w.Deposit(tokenX, big.NewInt(42))
	assert.Equal(t, big.NewInt(42), w.RemoveToken(tokenX))
	assert.Equal(t, int64(0), w.Balance(tokenX).Int64())
}

func TestWalletStablesProfit(t *testing.T) {
	w := NewWallet()
	w.Deposit(swaps.WETH, ethWei(1))
	w.Deposit(usdcAddr, big.NewInt(250_000000)) // 250 USDC
	assert.InDelta(t, 2250.0, w.StablesProfit(2000), 1e-9)
}

func TestHistoryBuySellProfit(t *testing.T) {
	h := NewHistory()
	h.Push(singleLeg(swaps.WETH, ethWei(1), tokenX, big.NewInt(100)))
	h.Push(singleLeg(tokenX, big.NewInt(100), swaps.WETH, ethWei(1.5)))

	entry := h.Token(tokenX)
	assert.NotNil(t, entry)
	assert.InDelta(t, 0.5*2000, entry.ProfitUSD(2000), 1e-9)
	assert.InDelta(t, 50, entry.ProfitPercent(2000), 0.01)

	value, x, ok := entry.ProfitETH()
	assert.True(t, ok)
	assert.InDelta(t, 0.5, value, 1e-9)
	assert.InDelta(t, 1.5, x, 1e-9)
}

func TestHistoryProfitETHRequiresNativeOnly(t *testing.T) {
	h := NewHistory()
	h.Push(singleLeg(swaps.WETH, ethWei(1), tokenX, big.NewInt(100)))
	h.Push(singleLeg(tokenX, big.NewInt(100), usdtAddr, big.NewInt(3000_000000)))

	_, _, ok := h.Token(tokenX).ProfitETH()
	assert.False(t, ok, "USDT flow disables the native-only shortcut")
	assert.InDelta(t, 1000, h.Token(tokenX).ProfitUSD(2000), 1e-9)
}

func TestHistoryProfitPercentZeroInput(t *testing.T) {
	h := NewTokenHistory(tokenX)
	h.Withdraw(Native, ethWei(1)) // income with no recorded buy
	assert.Equal(t, 0.0, h.ProfitPercent(2000))
}

func TestHistoryMeanInput(t *testing.T) {
	h := NewTokenHistory(tokenX)
	h.Deposit(Native, ethWei(1))
	h.Deposit(Native, ethWei(3))
	assert.Equal(t, ethWei(2), h.MeanInput(Native))
	assert.Equal(t, int64(0), h.MeanInput(USDC).Int64())
}

func TestHistoryTokenToTokenTracksSoldToken(t *testing.T) {
	h := NewHistory()
	h.Push(singleLeg(tokenX, big.NewInt(100), tokenY, big.NewInt(200)))

	assert.NotNil(t, h.Token(tokenX), "sold token gets a tracking entry")
	assert.Nil(t, h.Token(tokenY))
	assert.Equal(t, 0.0, h.Token(tokenX).ProfitUSD(2000), "no settlement flow recorded")
}

func TestHistoryPopAndOrder(t *testing.T) {
	h := NewHistory()
	h.Push(singleLeg(swaps.WETH, ethWei(1), tokenX, big.NewInt(100)))
	h.Push(singleLeg(swaps.WETH, ethWei(1), tokenY, big.NewInt(100)))

	assert.Equal(t, 2, h.Len())
	popped := h.Pop(tokenX)
	assert.Equal(t, tokenX, popped.Token)
	assert.Nil(t, h.Pop(tokenX))

	tokens := h.Tokens()
	assert.Len(t, tokens, 1)
	assert.Equal(t, tokenY, tokens[0].Token)
}

func TestHistoryAddBalanceETH(t *testing.T) {
	h := NewTokenHistory(tokenX)
	h.Deposit(Native, ethWei(1))
	h.AddBalanceETH(ethWei(1.2)) // unsold tokens valued at 1.2 ETH
	assert.InDelta(t, 0.2*2000, h.ProfitUSD(2000), 1e-6)
}

func TestToFloatDecimals(t *testing.T) {
	assert.InDelta(t, 1.5, ToFloat(ethWei(1.5), 18), 1e-12)
	assert.InDelta(t, 12.5, ToFloat(big.NewInt(12_500000), 6), 1e-12)
	assert.InDelta(t, -0.25, ToFloat(big.NewInt(-250000), 6), 1e-12)
}

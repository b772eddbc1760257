// Package ledger reduces an ordered swap sequence for one wallet into running
// balances and per-token cost-basis statistics. All amounts stay in the
// asset's smallest unit as big integers; floating point appears only at the
// USD conversion boundary.
package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradewatch/tradewatch/pkg/swaps"
)

// Asset tags the closed set of settlement assets profit is denominated in.
// None marks any other token.
type Asset int

const (
	None Asset = iota
	Native
	DAI
	USDC
	USDT

	numAssets = int(USDT) + 1
)

var (
	daiAddr  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdtAddr = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
)

var assetByAddr = map[common.Address]Asset{
	swaps.WETH: Native,
	daiAddr:    DAI,
	usdcAddr:   USDC,
	usdtAddr:   USDT,
}

// SettlementAssets lists every tagged asset, for iteration.
var SettlementAssets = [...]Asset{Native, DAI, USDC, USDT}

// AssetOf classifies a token address, returning None for anything outside the
// settlement set.
func AssetOf(token common.Address) Asset {
	return assetByAddr[token]
}

func (a Asset) Address() common.Address {
	switch a {
	case Native:
		return swaps.WETH
	case DAI:
		return daiAddr
	case USDC:
		return usdcAddr
	case USDT:
		return usdtAddr
	}
	return common.Address{}
}

func (a Asset) Decimals() int {
	switch a {
	case USDC, USDT:
		return 6
	default:
		return 18
	}
}

func (a Asset) String() string {
	switch a {
	case Native:
		return "ETH"
	case DAI:
		return "DAI"
	case USDC:
		return "USDC"
	case USDT:
		return "USDT"
	}
	return "?"
}

var pow10 = func() [19]*big.Float {
	var t [19]*big.Float
	n := big.NewInt(1)
	ten := big.NewInt(10)
	for i := range t {
		t[i] = new(big.Float).SetInt(n)
		n = new(big.Int).Mul(n, ten)
	}
	return t
}()

// ToFloat converts a smallest-unit amount to a whole-unit float. Only report
// and metric code should call this; ledger arithmetic never leaves big.Int.
func ToFloat(v *big.Int, decimals int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), pow10[decimals]).Float64()
	return f
}

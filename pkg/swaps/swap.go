// Package swaps reconstructs directional token swaps from mined transactions
// and their receipts. Token transfers are netted per token so that each token
// lands on exactly one side of the swap.
package swaps

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC-20/ERC-721 Transfer topic: keccak256("Transfer(address,address,uint256)")
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Uniswap pair swap topics, used to corroborate multi-leg swaps.
var (
	SwapV2Topic = common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")
	SwapV3Topic = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")
)

// WETH acts as the wrapped-native pseudo-token: direct ETH value and recovered
// internal transfers are accounted against it.
var WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

// Routers is the allow-list of router contracts that get the wrap-then-forward
// pass (Uniswap V2 router and the universal router).
var Routers = map[common.Address]bool{
	common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"): true,
	common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"): true,
}

// Tx carries the mined-transaction fields the extractor needs.
type Tx struct {
	Hash        common.Hash
	From        common.Address
	To          common.Address
	Value       *big.Int
	BlockNumber uint64
}

// Swap describes the net token/ETH flow of one transaction from the sender's
// point of view. TokenIn/AmountIn is what left the wallet, TokenOut/AmountOut
// what it received. Both sides are non-empty and parallel; amounts are
// strictly positive. A Swap is immutable once returned.
type Swap struct {
	Wallet    common.Address
	Fee       *big.Int
	TokenIn   []common.Address
	TokenOut  []common.Address
	AmountIn  []*big.Int
	AmountOut []*big.Int
}

// SingleLeg reports whether the swap exchanges exactly one token for one token.
func (s *Swap) SingleLeg() bool {
	return len(s.TokenIn) == 1 && len(s.TokenOut) == 1
}

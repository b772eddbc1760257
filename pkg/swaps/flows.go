package swaps

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// flow accumulates per-token transfer volume. in is what left the wallet,
// out what it received; the net decides which side of the swap the token
// ends up on.
type flow struct {
	in, out big.Int
}

// flows keeps first-seen token order so swap legs come out deterministic.
type flows struct {
	order   []common.Address
	entries map[common.Address]*flow
}

func newFlows() *flows {
	return &flows{entries: make(map[common.Address]*flow)}
}

func (f *flows) get(token common.Address) *flow {
	e, ok := f.entries[token]
	if !ok {
		e = &flow{}
		f.entries[token] = e
		f.order = append(f.order, token)
	}
	return e
}

func (f *flows) empty() bool { return len(f.order) == 0 }

// toSwap nets every accumulated token into the in or out leg. Tokens whose
// inflow equals outflow cancel out and are dropped.
func (f *flows) toSwap(tx Tx, receipt *types.Receipt) *Swap {
	s := &Swap{Wallet: tx.From, Fee: receiptFee(receipt)}
	for _, token := range f.order {
		e := f.entries[token]
		switch e.out.Cmp(&e.in) {
		case 1:
			s.TokenOut = append(s.TokenOut, token)
			s.AmountOut = append(s.AmountOut, new(big.Int).Sub(&e.out, &e.in))
		case -1:
			s.TokenIn = append(s.TokenIn, token)
			s.AmountIn = append(s.AmountIn, new(big.Int).Sub(&e.in, &e.out))
		}
	}
	return s
}

func receiptFee(receipt *types.Receipt) *big.Int {
	if receipt.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
}

// transferAmount decodes the value of a Transfer log. ERC-721 style transfers
// carry it as a fourth indexed topic, ERC-20 in the data word.
func transferAmount(l *types.Log) *big.Int {
	if len(l.Topics) > 3 {
		return new(big.Int).SetBytes(l.Topics[3].Bytes())
	}
	if len(l.Data) < 32 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(l.Data[:32])
}

func addrTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

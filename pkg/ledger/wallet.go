package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is the balance ledger: token to signed balance, scoped to the
// analyzed period. Balances go negative when the period starts mid-position.
type Wallet struct {
	balances map[common.Address]*big.Int
}

func NewWallet() *Wallet {
	return &Wallet{balances: make(map[common.Address]*big.Int)}
}

// Deposit credits value to token. A zero value is a no-op so the map never
// grows spurious entries.
func (w *Wallet) Deposit(token common.Address, value *big.Int) {
	if value.Sign() == 0 {
		return
	}
	b, ok := w.balances[token]
	if !ok {
		b = new(big.Int)
		w.balances[token] = b
	}
	b.Add(b, value)
}

func (w *Wallet) Withdraw(token common.Address, value *big.Int) {
	if value.Sign() == 0 {
		return
	}
	b, ok := w.balances[token]
	if !ok {
		b = new(big.Int)
		w.balances[token] = b
	}
	b.Sub(b, value)
}

// HasBalance reports whether the recorded balance covers value. A zero value
// is always satisfiable.
func (w *Wallet) HasBalance(token common.Address, value *big.Int) bool {
	if value.Sign() == 0 {
		return true
	}
	b, ok := w.balances[token]
	return ok && b.Cmp(value) >= 0
}

func (w *Wallet) Balance(token common.Address) *big.Int {
	if b, ok := w.balances[token]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// RemoveToken deletes token from the ledger and returns the prior balance,
// nil when the token was untracked.
func (w *Wallet) RemoveToken(token common.Address) *big.Int {
	b, ok := w.balances[token]
	if !ok {
		return nil
	}
	delete(w.balances, token)
	return b
}

// StablesProfit values the ledger's settlement-asset balances in USD.
func (w *Wallet) StablesProfit(ethUSD float64) float64 {
	profit := 0.0
	for _, a := range SettlementAssets {
		b, ok := w.balances[a.Address()]
		if !ok {
			continue
		}
		v := ToFloat(b, a.Decimals())
		if a == Native {
			v *= ethUSD
		}
		profit += v
	}
	return profit
}

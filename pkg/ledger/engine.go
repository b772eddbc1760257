package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/pkg/swaps"
)

// Outcome is the result of replaying one wallet's swap sequence.
type Outcome struct {
	Wallet  *Wallet
	History *History
	// Multi accumulates the settlement flows of multi-leg swaps. It carries
	// no token key and feeds aggregate PNL only.
	Multi  *TokenHistory
	Banned []common.Address
}

// Engine replays swap sequences. Replay is strictly sequential per wallet;
// swap order decides balance sufficiency and with it which tokens get banned.
type Engine struct {
	log zerolog.Logger
}

func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Replay folds swapSeq, in order, into a fresh ledger and history.
//
// A single-leg swap spending a non-settlement token the ledger cannot cover
// bans that token: the swap is dropped, the token's history entry is evicted
// and its settlement deltas are reversed out of the ledger. Spending a token
// never cleanly received usually means an airdrop, a rebase or activity from
// before the period, none of which can be priced.
func (e *Engine) Replay(swapSeq []*swaps.Swap) *Outcome {
	out := &Outcome{
		Wallet:  NewWallet(),
		History: NewHistory(),
		Multi:   NewTokenHistory(common.Address{}),
	}
	banned := make(map[common.Address]bool)

	for _, s := range swapSeq {
		if s.SingleLeg() {
			e.replayOne(out, banned, s)
		} else {
			e.replayMulti(out, s)
		}
	}
	return out
}

func (e *Engine) replayOne(out *Outcome, banned map[common.Address]bool, s *swaps.Swap) {
	in, amountIn := s.TokenIn[0], s.AmountIn[0]
	if AssetOf(in) == None && !out.Wallet.HasBalance(in, amountIn) {
		e.ban(out, banned, in)
		return
	}
	out.History.Push(s)
	out.Wallet.Withdraw(in, amountIn)
	out.Wallet.Deposit(s.TokenOut[0], s.AmountOut[0])
}

func (e *Engine) replayMulti(out *Outcome, s *swaps.Swap) {
	for i, t := range s.TokenIn {
		if a := AssetOf(t); a != None {
			out.Multi.Deposit(a, s.AmountIn[i])
		} else {
			out.Wallet.Withdraw(t, s.AmountIn[i])
			out.History.MarkMultiple(t)
		}
	}
	for i, t := range s.TokenOut {
		if a := AssetOf(t); a != None {
			out.Multi.Withdraw(a, s.AmountOut[i])
		} else {
			out.Wallet.Deposit(t, s.AmountOut[i])
			out.History.MarkMultiple(t)
		}
	}
}

// ban evicts token and puts every settlement amount its history moved back
// where it was: spend is credited back, income is debited.
func (e *Engine) ban(out *Outcome, banned map[common.Address]bool, token common.Address) {
	if entry := out.History.Pop(token); entry != nil {
		for _, a := range SettlementAssets {
			out.Wallet.Deposit(a.Address(), entry.Input(a))
			out.Wallet.Withdraw(a.Address(), entry.Output(a))
		}
	}
	out.Wallet.RemoveToken(token)
	if !banned[token] {
		banned[token] = true
		out.Banned = append(out.Banned, token)
		e.log.Debug().Stringer("token", token).Msg("token banned, settlement flows reversed")
	}
}

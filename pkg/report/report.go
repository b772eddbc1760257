// Package report reduces a wallet's replayed ledger into a presentable value
// object: per-token profit entries, a honeypot sublist and aggregate metrics.
package report

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Metric names surfaced on reports.
const (
	PNLUSD = "PNL_USD"
	// PNL2USD counts realized profit only: tokens fully exited plus the
	// settlement flows of multi-leg swaps. Open positions are excluded.
	PNL2USD                     = "PNL2_USD"
	WinRate                     = "WIN_RATE"
	PNLAveragePercent           = "PNL_AVERAGE_PERCENT"
	PNLAveragePercentNoHoneypot = "PNL_AVERAGE_PERCENT_WITHOUT_HONEYPOTS"
	AmountOfTokens              = "AMOUNT_OF_TOKENS"
)

// ProfitETH is the native-only profit shortcut: profit in ether plus the
// return multiple when the position is net positive.
type ProfitETH struct {
	Value float64
	X     float64
}

// TokenBalance values tokens still sitting in the wallet.
type TokenBalance struct {
	Value *big.Int
	USD   float64
}

type TokenInfo struct {
	Token        common.Address
	Symbol       string
	Decimals     int
	ProfitUSD    float64
	ProfitETH    *ProfitETH
	Balance      *TokenBalance
	InWallet     bool
	LowLiquidity bool
}

// Report is the read-only result of one wallet analysis.
type Report struct {
	ID             string
	Wallet         common.Address
	Period         [2]time.Time
	Tokens         []TokenInfo
	Honeypots      []TokenInfo
	TokensInWallet int
	MetricNames    []string
	MetricValues   []float64
}

// Metric returns the named aggregate value.
func (r *Report) Metric(name string) (float64, bool) {
	for i, n := range r.MetricNames {
		if n == name {
			return r.MetricValues[i], true
		}
	}
	return 0, false
}

// newID returns a 10-char lowercase hex report id.
func newID() string {
	var b [5]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

package signal

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/tradewatch/tradewatch/pkg/report"
)

var (
	tokenA  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	wallet1 = common.HexToAddress("0x1000000000000000000000000000000000000001")
	wallet2 = common.HexToAddress("0x1000000000000000000000000000000000000002")
)

func entry(token, wallet common.Address, amount int64) *Entry {
	return &Entry{
		Token:  token,
		Wallet: wallet,
		Amount: big.NewInt(amount),
		Time:   time.Unix(1700000000, 0),
	}
}

func TestWindowEvictsAfterFullRotation(t *testing.T) {
	const blocks = 5
	w := NewWindow(blocks)
	w.Add(entry(tokenA, wallet1, 1))
	assert.Equal(t, 1, w.Alive(tokenA))

	for i := 0; i < blocks-1; i++ {
		w.Advance()
		assert.Equal(t, 1, w.Alive(tokenA), "entry must survive %d advances", i+1)
	}
	w.Advance()
	assert.Equal(t, 0, w.Alive(tokenA), "entry must be gone after a full rotation")
}

func TestWindowEvictionIsPerBucket(t *testing.T) {
	w := NewWindow(3)
	w.Add(entry(tokenA, wallet1, 1))
	w.Advance()
	w.Add(entry(tokenA, wallet2, 2))
	assert.Equal(t, 2, w.Alive(tokenA))

	w.Advance()
	w.Advance() // evicts wallet1's bucket only
	assert.Equal(t, 1, w.Alive(tokenA))
	assert.Equal(t, wallet2, w.DistinctWallets(tokenA)[0].Wallet)
}

func TestDistinctWalletsKeepsMostRecent(t *testing.T) {
	w := NewWindow(4)
	w.Add(entry(tokenA, wallet1, 1))
	w.Add(entry(tokenA, wallet2, 2))
	w.Advance()
	w.Add(entry(tokenA, wallet1, 3))

	distinct := w.DistinctWallets(tokenA)
	assert.Len(t, distinct, 2)
	for _, e := range distinct {
		if e.Wallet == wallet1 {
			assert.Equal(t, int64(3), e.Amount.Int64(), "newer entry replaces the older")
		}
	}
}

func TestConsumeClearsToken(t *testing.T) {
	w := NewWindow(4)
	w.Add(entry(tokenA, wallet1, 1))
	w.Add(entry(tokenB, wallet1, 2))
	w.Add(entry(tokenA, wallet2, 3))

	consumed := w.Consume(tokenA)
	assert.Len(t, consumed, 2)
	assert.Equal(t, 0, w.Alive(tokenA))
	assert.Equal(t, 1, w.Alive(tokenB), "other tokens stay put")
	assert.Nil(t, w.Consume(tokenA))
}

func passingReport() *report.Report {
	return &report.Report{
		MetricNames: []string{report.PNL2USD, report.AmountOfTokens, report.WinRate, report.PNLAveragePercentNoHoneypot},
		MetricValues: []float64{
			10_000, // pnl
			10,     // tokens
			0.8,    // win rate
			120,    // avg percent
		},
	}
}

func testThresholds() Thresholds {
	return Thresholds{
		MaxHoneypotRatio: 0.3,
		MinPNLUSD:        4500,
		MinTokens:        2,
		MaxTokens:        60,
		MinWinRate:       0.5,
		MinAvgPercent:    50,
	}
}

func TestThresholdsCheck(t *testing.T) {
	th := testThresholds()

	reason, ok := th.Check(passingReport())
	assert.True(t, ok, "unexpected rejection: %s", reason)

	set := func(name string, v float64) *report.Report {
		r := passingReport()
		for i, n := range r.MetricNames {
			if n == name {
				r.MetricValues[i] = v
			}
		}
		return r
	}

	tests := []struct {
		name   string
		report *report.Report
		rule   string
	}{
		{"low pnl", set(report.PNL2USD, 100), "pnl"},
		{"one token", set(report.AmountOfTokens, 1), "token count"},
		{"bot-like spread", set(report.AmountOfTokens, 500), "token count"},
		{"coin flipper", set(report.WinRate, 0.2), "win rate"},
		{"thin edge", set(report.PNLAveragePercentNoHoneypot, 5), "average return"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := th.Check(tt.report)
			assert.False(t, ok)
			assert.Equal(t, tt.rule, rule)
		})
	}
}

func TestThresholdsHoneypotRatio(t *testing.T) {
	r := passingReport()
	r.Tokens = make([]report.TokenInfo, 5)
	r.Honeypots = make([]report.TokenInfo, 5)

	rule, ok := testThresholds().Check(r)
	assert.False(t, ok)
	assert.Equal(t, "honeypot ratio", rule)
}

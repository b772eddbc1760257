package signal

import (
	"github.com/tradewatch/tradewatch/pkg/report"
)

// Thresholds is the filter chain a wallet report must clear before its buys
// count toward signals.
type Thresholds struct {
	MaxHoneypotRatio float64
	MinPNLUSD        float64
	MinTokens        int
	MaxTokens        int
	MinWinRate       float64
	MinAvgPercent    float64
}

// Check runs the chain in order and returns the name of the first rule the
// report fails, or ok when it clears all of them.
func (t Thresholds) Check(r *report.Report) (string, bool) {
	total := len(r.Tokens) + len(r.Honeypots)
	if total > 0 && float64(len(r.Honeypots))/float64(total) > t.MaxHoneypotRatio {
		return "honeypot ratio", false
	}
	if pnl, ok := r.Metric(report.PNL2USD); !ok || pnl < t.MinPNLUSD {
		return "pnl", false
	}
	if count, ok := r.Metric(report.AmountOfTokens); !ok ||
		int(count) < t.MinTokens || int(count) > t.MaxTokens {
		return "token count", false
	}
	if win, ok := r.Metric(report.WinRate); !ok || win < t.MinWinRate {
		return "win rate", false
	}
	if avg, ok := r.Metric(report.PNLAveragePercentNoHoneypot); !ok || avg < t.MinAvgPercent {
		return "average return", false
	}
	return "", true
}

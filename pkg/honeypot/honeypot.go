// Package honeypot classifies whether a token's sell path is blocked or its
// liquidity too thin to exit.
package honeypot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradewatch/tradewatch/pkg/retry"
)

// Result is the classification verdict. Unknown means the check could not be
// completed and the token should not be treated either way.
type Result int

const (
	Unknown Result = iota - 1
	NotHoneypot
	Honeypot
	LowLiquidity
)

func (r Result) String() string {
	switch r {
	case NotHoneypot:
		return "ok"
	case Honeypot:
		return "honeypot"
	case LowLiquidity:
		return "low liquidity"
	}
	return "unknown"
}

// Verdict is the raw check outcome. The liquidity threshold is applied by the
// consumer so one cached verdict serves any threshold.
type Verdict struct {
	Honeypot  bool
	Liquidity float64
}

// Checker runs a sell-path simulation for a token.
type Checker interface {
	Check(ctx context.Context, token common.Address) (Verdict, error)
}

// Client talks to a honeypot.is-compatible API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Check(ctx context.Context, token common.Address) (Verdict, error) {
	url := fmt.Sprintf("%s/v2/IsHoneypot?address=%s", c.baseURL, token.Hex())
	return retry.Do(ctx, 3, 3*time.Second, func(ctx context.Context) (Verdict, error) {
		body, err := c.getJSON(ctx, url)
		if err != nil {
			return Verdict{}, err
		}
		var result struct {
			HoneypotResult *struct {
				IsHoneypot bool `json:"isHoneypot"`
			} `json:"honeypotResult"`
			SimulationSuccess *bool `json:"simulationSuccess"`
			Pair              struct {
				Liquidity float64 `json:"liquidity"`
			} `json:"pair"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return Verdict{}, err
		}
		v := Verdict{Liquidity: result.Pair.Liquidity}
		if result.HoneypotResult != nil && result.HoneypotResult.IsHoneypot {
			v.Honeypot = true
		}
		// A failed simulation is indistinguishable from a blocked sell.
		if result.SimulationSuccess != nil && !*result.SimulationSuccess {
			v.Honeypot = true
		}
		return v, nil
	})
}

func (c *Client) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB max
}

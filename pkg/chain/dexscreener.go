package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DexScreener quotes tokens in USD from the public DexScreener API. Used as
// the price fallback for tokens the on-chain aggregator cannot route.
type DexScreener struct {
	client *http.Client
}

func NewDexScreener() *DexScreener {
	return &DexScreener{client: &http.Client{Timeout: 15 * time.Second}}
}

// PriceUSD returns the price of the token's deepest pool, 0 when unlisted.
func (d *DexScreener) PriceUSD(ctx context.Context, token common.Address) (float64, error) {
	url := fmt.Sprintf("https://api.dexscreener.com/latest/dex/tokens/%s", token.Hex())
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("HTTP %d from dexscreener", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return 0, err
	}

	var result struct {
		Pairs []struct {
			PriceUSD  string `json:"priceUsd"`
			Liquidity struct {
				USD float64 `json:"usd"`
			} `json:"liquidity"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}

	// Pick the highest-liquidity pair.
	bestPrice, bestLiq := 0.0, 0.0
	for _, p := range result.Pairs {
		price, _ := strconv.ParseFloat(p.PriceUSD, 64)
		if price > 0 && p.Liquidity.USD > bestLiq {
			bestPrice, bestLiq = price, p.Liquidity.USD
		}
	}
	return bestPrice, nil
}

package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TrackedWallet binds a followed address to the subscriber id that registered
// it.
type TrackedWallet struct {
	Address string
	ID      int64
	Label   string
}

type Config struct {
	// Node and explorer
	RPCURL      string
	ExplorerURL string
	ExplorerKey string

	// Honeypot API
	HoneypotAPIURL  string
	HoneypotTimeout time.Duration
	MinLiquidityUSD float64

	// Wallets followed at startup
	TrackedWallets []TrackedWallet

	// Signal gates
	MinETH        float64
	MinStableUSD  int64
	WindowBlocks  int
	SignalWallets int

	// Wallet quality thresholds
	MinPNLUSD        float64
	MinTokens        int
	MaxTokens        int
	MinWinRate       float64
	MinAvgPercent    float64
	MaxHoneypotRatio float64

	// Cache sizes
	ReportCacheSize   int
	HoneypotCacheSize int
	PriceCacheSize    int

	// One-shot report window
	PeriodDays int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RPCURL:      os.Getenv("ETH_RPC_URL"),
		ExplorerURL: envOr("EXPLORER_API_URL", "https://api.etherscan.io/api"),
		ExplorerKey: os.Getenv("EXPLORER_API_KEY"),

		HoneypotAPIURL:  envOr("HONEYPOT_API_URL", "https://api.honeypot.is"),
		HoneypotTimeout: time.Duration(envInt("HONEYPOT_TIMEOUT_SECONDS", 30)) * time.Second,
		MinLiquidityUSD: envFloat("MIN_LIQUIDITY_USD", 30_000),

		MinETH:        envFloat("MIN_ETH", 3),
		MinStableUSD:  int64(envInt("MIN_STABLE_USD", 5000)),
		WindowBlocks:  envInt("WINDOW_BLOCKS", 50),
		SignalWallets: envInt("SIGNAL_WALLETS", 3),

		MinPNLUSD:        envFloat("MIN_PNL_USD", 4500),
		MinTokens:        envInt("MIN_TOKENS", 2),
		MaxTokens:        envInt("MAX_TOKENS", 60),
		MinWinRate:       envFloat("MIN_WIN_RATE", 0),
		MinAvgPercent:    envFloat("MIN_AVG_PERCENT", 0),
		MaxHoneypotRatio: envFloat("MAX_HONEYPOT_RATIO", 0.5),

		ReportCacheSize:   envInt("REPORT_CACHE_SIZE", 4000),
		HoneypotCacheSize: envInt("HONEYPOT_CACHE_SIZE", 4096),
		PriceCacheSize:    envInt("PRICE_CACHE_SIZE", 2048),

		PeriodDays: envInt("PERIOD_DAYS", 15),
	}

	// Followed wallets: "addr:id:label,addr:id:label", label optional.
	for _, w := range splitTrim(os.Getenv("TRACKED_WALLETS")) {
		parts := strings.SplitN(w, ":", 3)
		if len(parts) < 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		tw := TrackedWallet{Address: parts[0], ID: id}
		if len(parts) == 3 {
			tw.Label = parts[2]
		}
		cfg.TrackedWallets = append(cfg.TrackedWallets, tw)
	}

	return cfg, nil
}

// MinNativeWei is the signal floor in wei.
func (c *Config) MinNativeWei() *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(c.MinETH), big.NewFloat(1e18)).Int(nil)
	return wei
}

func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("ETH_RPC_URL is required")
	}
	if c.ExplorerKey == "" {
		return fmt.Errorf("EXPLORER_API_KEY is required")
	}
	if c.SignalWallets < 2 {
		return fmt.Errorf("SIGNAL_WALLETS must be at least 2, got %d", c.SignalWallets)
	}
	if c.WindowBlocks < 1 {
		return fmt.Errorf("WINDOW_BLOCKS must be positive, got %d", c.WindowBlocks)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

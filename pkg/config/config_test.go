package config

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ETH_RPC_URL", "http://localhost:8545")
	t.Setenv("EXPLORER_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://api.etherscan.io/api", cfg.ExplorerURL)
	assert.Equal(t, 3.0, cfg.MinETH)
	assert.Equal(t, int64(5000), cfg.MinStableUSD)
	assert.Equal(t, 4500.0, cfg.MinPNLUSD)
	assert.Equal(t, 60, cfg.MaxTokens)
	assert.Equal(t, big.NewInt(3e18), cfg.MinNativeWei())
}

func TestLoadTrackedWallets(t *testing.T) {
	t.Setenv("TRACKED_WALLETS", "0xabc:7:whale, 0xdef:9 ,broken,0xbad:x")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.TrackedWallets, 2)
	assert.Equal(t, TrackedWallet{Address: "0xabc", ID: 7, Label: "whale"}, cfg.TrackedWallets[0])
	assert.Equal(t, TrackedWallet{Address: "0xdef", ID: 9}, cfg.TrackedWallets[1])
}

func TestValidate(t *testing.T) {
	cfg := &Config{RPCURL: "http://localhost:8545", ExplorerKey: "key", SignalWallets: 3, WindowBlocks: 50}
	assert.NoError(t, cfg.Validate())

	assert.Error(t, (&Config{ExplorerKey: "key", SignalWallets: 3, WindowBlocks: 50}).Validate())
	assert.Error(t, (&Config{RPCURL: "url", SignalWallets: 3, WindowBlocks: 50}).Validate())
	assert.Error(t, (&Config{RPCURL: "url", ExplorerKey: "key", SignalWallets: 1, WindowBlocks: 50}).Validate())
}

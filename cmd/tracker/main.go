package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tradewatch/tradewatch/pkg/analytics"
	"github.com/tradewatch/tradewatch/pkg/chain"
	"github.com/tradewatch/tradewatch/pkg/config"
	"github.com/tradewatch/tradewatch/pkg/honeypot"
	"github.com/tradewatch/tradewatch/pkg/ledger"
	"github.com/tradewatch/tradewatch/pkg/oracle"
	"github.com/tradewatch/tradewatch/pkg/report"
	sig "github.com/tradewatch/tradewatch/pkg/signal"
	"github.com/tradewatch/tradewatch/pkg/swaps"
)

func main() {
	walletFlag := flag.String("wallet", "", "build a one-shot report for this address and exit")
	watchFlag := flag.Bool("watch", false, "follow tracked wallets and raise buy signals")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if *walletFlag == "" && !*watchFlag {
		fmt.Fprintln(os.Stderr, "usage: tracker -wallet 0x... | tracker -watch")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; log.Info().Msg("shutting down..."); cancel() }()

	client, err := chain.Dial(ctx, cfg.RPCURL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("node dial failed")
	}
	defer client.Close()

	explorer := chain.NewExplorer(cfg.ExplorerURL, cfg.ExplorerKey, log.Logger)
	checker := honeypot.NewCached(honeypot.NewClient(cfg.HoneypotAPIURL), cfg.HoneypotCacheSize, cfg.HoneypotTimeout, log.Logger)
	prices := oracle.NewPrices(client, chain.NewDexScreener(), cfg.PriceCacheSize, log.Logger)
	extractor := swaps.NewExtractor(client, explorer, client, log.Logger)
	builder := report.NewBuilder(client, prices, checker, cfg.MinLiquidityUSD, log.Logger)

	ethUSD := &ethPrice{explorer: explorer}
	ethUSD.refresh(ctx)

	engine := analytics.NewEngine(explorer, client, extractor, ledger.NewEngine(log.Logger), builder, ethUSD, client, log.Logger)

	if *walletFlag != "" {
		runReport(ctx, engine, client, common.HexToAddress(*walletFlag))
		return
	}
	runWatch(ctx, cfg, client, extractor, engine)
}

func runReport(ctx context.Context, engine *analytics.Engine, client *chain.Client, wallet common.Address) {
	block, err := client.BlockNumber(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("block number fetch failed")
	}
	rep, err := engine.Report(ctx, wallet, block, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("report failed")
	}
	printReport(rep)
}

func runWatch(ctx context.Context, cfg *config.Config, client *chain.Client, extractor *swaps.Extractor, engine *analytics.Engine) {
	watcher := sig.NewWatcher(client, extractor, engine, sig.Config{
		WindowBlocks:  cfg.WindowBlocks,
		SignalWallets: cfg.SignalWallets,
		MinNative:     cfg.MinNativeWei(),
		MinStableUSD:  cfg.MinStableUSD,
		ReportCache:   cfg.ReportCacheSize,
		Thresholds: sig.Thresholds{
			MaxHoneypotRatio: cfg.MaxHoneypotRatio,
			MinPNLUSD:        cfg.MinPNLUSD,
			MinTokens:        cfg.MinTokens,
			MaxTokens:        cfg.MaxTokens,
			MinWinRate:       cfg.MinWinRate,
			MinAvgPercent:    cfg.MinAvgPercent,
		},
	}, printSignal, log.Logger)

	for _, w := range cfg.TrackedWallets {
		watcher.Follow(w.Address, w.ID)
		log.Info().Str("wallet", w.Address).Str("label", w.Label).Msg("following")
	}

	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("watcher stopped")
	}
	log.Info().Msg("goodbye")
}

// ethPrice keeps the last known ETH/USD quote hot so per-wallet reports never
// block on the stats endpoint. A cron job refreshes it every five minutes.
type ethPrice struct {
	explorer *chain.Explorer
	last     atomic.Value
	cron     *cron.Cron
}

func (p *ethPrice) refresh(ctx context.Context) {
	if p.cron == nil {
		p.cron = cron.New()
		p.cron.AddFunc("@every 5m", func() { p.update(ctx) })
		p.cron.Start()
		go func() { <-ctx.Done(); p.cron.Stop() }()
	}
	p.update(ctx)
}

func (p *ethPrice) update(ctx context.Context) {
	v, err := p.explorer.EthPriceUSD(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("eth price refresh failed")
		return
	}
	p.last.Store(v)
}

func (p *ethPrice) EthPriceUSD(ctx context.Context) (float64, error) {
	if v, ok := p.last.Load().(float64); ok && v > 0 {
		return v, nil
	}
	return p.explorer.EthPriceUSD(ctx)
}

func printReport(rep *report.Report) {
	bold := color.New(color.Bold)
	bold.Printf("\nReport %s for %s\n", rep.ID, rep.Wallet)
	fmt.Printf("Period: %s .. %s\n\n", rep.Period[0].Format("2006-01-02"), rep.Period[1].Format("2006-01-02"))

	metrics := tablewriter.NewWriter(os.Stdout)
	metrics.SetHeader([]string{"Metric", "Value"})
	for i, name := range rep.MetricNames {
		metrics.Append([]string{name, fmt.Sprintf("%.2f", rep.MetricValues[i])})
	}
	metrics.Render()

	if len(rep.Tokens) > 0 {
		fmt.Println()
		tokens := tablewriter.NewWriter(os.Stdout)
		tokens.SetHeader([]string{"Token", "Symbol", "Profit USD", "Held"})
		for _, tok := range rep.Tokens {
			tokens.Append([]string{tok.Token.Hex(), tok.Symbol, profitCell(tok.ProfitUSD), heldCell(tok)})
		}
		tokens.Render()
	}
	if len(rep.Honeypots) > 0 {
		fmt.Println()
		color.Red("Honeypots:")
		for _, tok := range rep.Honeypots {
			fmt.Printf("  %s %s %.2f USD\n", tok.Token.Hex(), tok.Symbol, tok.ProfitUSD)
		}
	}
}

func printSignal(s sig.Signal) {
	kind := "minor signal"
	if s.Major {
		kind = "SIGNAL"
	}
	header := color.New(color.Bold, color.FgGreen)
	if !s.Major {
		header = color.New(color.FgYellow)
	}
	header.Printf("%s %s (%d wallets)\n", kind, s.Token.Hex(), len(s.Wallets))
	for _, e := range s.Wallets {
		fmt.Printf("  %s %s\n", e.Wallet.Hex(), e.Reason)
	}
	log.Info().Stringer("token", s.Token).Bool("major", s.Major).Int("wallets", len(s.Wallets)).Msg("signal raised")
}

func profitCell(v float64) string {
	if v >= 0 {
		return color.GreenString("%.2f", v)
	}
	return color.RedString("%.2f", v)
}

func heldCell(tok report.TokenInfo) string {
	if tok.Balance == nil || !tok.InWallet {
		return ""
	}
	return fmt.Sprintf("%.2f USD", tok.Balance.USD)
}

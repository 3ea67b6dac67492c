// Command trades fetches every recorded trade for a wallet from the
// Polymarket Data API and writes them to a CSV for reconciliation.
//
// Usage:
//
//	trades -wallet 0x... [-out data/trades.csv] [-limit 0]
//
// The wallet and API base may also come from a .env file or the
// environment (POLY_WALLET, DATA_API_URL).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rickgao/polysweep/internal/trades"
	"github.com/rickgao/polysweep/internal/version"
	"github.com/rickgao/polysweep/internal/wallet"
)

func main() {
	// .env is optional; explicit flags and real env still win.
	_ = godotenv.Load()

	walletFlag := flag.String("wallet", os.Getenv("POLY_WALLET"), "proxy wallet address (or POLY_WALLET)")
	out := flag.String("out", "data/trades.csv", "output CSV path")
	limit := flag.Int("limit", 0, "max trades to fetch (0 = all)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *walletFlag == "" {
		logger.Error("no wallet address given, use -wallet or POLY_WALLET")
		os.Exit(1)
	}

	addr, err := wallet.Normalize(*walletFlag)
	if err != nil {
		logger.Error("invalid wallet address", "wallet", *walletFlag, "error", err)
		os.Exit(1)
	}

	baseURL := os.Getenv("DATA_API_URL")
	if baseURL == "" {
		baseURL = trades.DefaultBaseURL
	}

	logger.Info("fetching wallet trades",
		"version", version.Version,
		"wallet", addr,
		"data_api", baseURL,
		"limit", *limit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	client := trades.NewClient(baseURL, trades.WithLogger(logger))

	records, err := client.UserTrades(ctx, addr, trades.PageOptions{MaxTrades: *limit})
	if err != nil {
		logger.Error("failed to fetch trades", "error", err)
		os.Exit(1)
	}

	if err := trades.WriteCSV(*out, records); err != nil {
		logger.Error("failed to write trades csv", "path", *out, "error", err)
		os.Exit(1)
	}

	var buys, sells int
	var volume float64
	for _, r := range records {
		switch r.TradeSide {
		case "BUY":
			buys++
		case "SELL":
			sells++
		}
		volume += r.USDCValue
	}

	logger.Info("trades written",
		"path", *out,
		"trades", len(records),
		"buys", buys,
		"sells", sells,
		"usdc_volume", volume,
	)
}

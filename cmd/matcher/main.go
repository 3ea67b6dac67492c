// Command matcher reconciles executed trades against the monitor's session
// index and reports which watch session each trade hit.
//
// Usage:
//
//	matcher -trades data/trades.csv -sessions data/sessions.jsonl [-events data/events.csv] [-out data/matched.csv]
//
// At least one of -sessions or -events is required. When both are given the
// session index wins and derived sessions only fill uncovered markets.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/polysweep/internal/match"
	"github.com/rickgao/polysweep/internal/model"
	"github.com/rickgao/polysweep/internal/trades"
	"github.com/rickgao/polysweep/internal/version"
	"github.com/rickgao/polysweep/internal/wallet"
)

func main() {
	// .env is optional; explicit flags and real env still win.
	_ = godotenv.Load()

	tradesPath := flag.String("trades", "data/trades.csv", "trade CSV from the trades command")
	sessionsPath := flag.String("sessions", "", "session index JSONL written by the monitor")
	eventsPath := flag.String("events", "", "event CSV written by the monitor, used to derive sessions")
	out := flag.String("out", "data/matched.csv", "output CSV path")
	walletFlag := flag.String("wallet", os.Getenv("POLY_WALLET"), "only match trades for this wallet (optional)")
	flag.Parse()

	// Logs go to stderr; stdout carries the report.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting matcher", "version", version.Version)

	if *sessionsPath == "" && *eventsPath == "" {
		logger.Error("no session source given, use -sessions and/or -events")
		os.Exit(1)
	}

	var sessions []*model.SessionRecord
	if *sessionsPath != "" {
		loaded, err := match.LoadSessions(*sessionsPath)
		if err != nil {
			logger.Error("failed to load session index", "path", *sessionsPath, "error", err)
			os.Exit(1)
		}
		logger.Info("session index loaded", "path", *sessionsPath, "sessions", len(loaded))
		sessions = loaded
	}
	if *eventsPath != "" {
		derived, err := match.DeriveSessions(*eventsPath)
		if err != nil {
			logger.Error("failed to derive sessions from events", "path", *eventsPath, "error", err)
			os.Exit(1)
		}
		before := len(sessions)
		sessions = mergeDerived(sessions, derived)
		logger.Info("sessions derived from events",
			"path", *eventsPath,
			"derived", len(derived),
			"added", len(sessions)-before,
		)
	}

	records, err := trades.ReadCSV(*tradesPath)
	if err != nil {
		logger.Error("failed to load trades", "path", *tradesPath, "error", err)
		os.Exit(1)
	}
	logger.Info("trades loaded", "path", *tradesPath, "trades", len(records))

	if *walletFlag != "" {
		addr, err := wallet.Normalize(*walletFlag)
		if err != nil {
			logger.Error("invalid wallet address", "wallet", *walletFlag, "error", err)
			os.Exit(1)
		}
		kept := records[:0]
		for _, r := range records {
			if wallet.Equal(r.Wallet, addr) {
				kept = append(kept, r)
			}
		}
		logger.Info("filtered by wallet",
			"wallet", addr,
			"kept", len(kept),
			"dropped", len(records)-len(kept),
		)
		records = kept
	}

	m := match.New(sessions)
	results := m.MatchAll(records)

	if err := match.WriteResultsCSV(*out, results); err != nil {
		logger.Error("failed to write results csv", "path", *out, "error", err)
		os.Exit(1)
	}

	summary := match.Summarize(results)
	printSummary(os.Stdout, summary)

	logger.Info("reconciliation written",
		"path", *out,
		"trades", summary.Total,
		"unmatched", summary.Unmatched,
	)
}

// mergeDerived appends derived sessions whose (slug, instrument) pair the
// index does not already cover.
func mergeDerived(index, derived []*model.SessionRecord) []*model.SessionRecord {
	type key struct {
		slug       string
		instrument string
	}

	seen := make(map[key]struct{}, len(index))
	for _, s := range index {
		seen[key{s.MarketSlug, s.InstrumentID}] = struct{}{}
	}

	out := index
	for _, d := range derived {
		if _, ok := seen[key{d.MarketSlug, d.InstrumentID}]; ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

// printSummary renders the tier breakdown and net positions.
func printSummary(w io.Writer, s match.Summary) {
	fmt.Fprintf(w, "\nMatched %d trades\n", s.Total)
	for _, tier := range []model.MatchTier{model.TierConditionID, model.TierExact, model.TierSlugOnly, model.TierNone} {
		if n := s.Tiers[tier]; n > 0 {
			fmt.Fprintf(w, "  %-13s %d\n", tier, n)
		}
	}

	if len(s.Positions) == 0 {
		return
	}

	fmt.Fprintf(w, "\nPositions (newest first):\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKET\tOUTCOME\tSIDE\tFILLS\tSIZE\tUSDC\tAVG PRICE\tLAST")
	for _, p := range s.Positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.4f\t%s\n",
			p.MarketSlug,
			p.Outcome,
			p.TradeSide,
			p.Fills,
			p.TotalSize,
			p.TotalUSDC,
			p.AvgPrice,
			p.LastAt.UTC().Format(time.RFC3339),
		)
	}
	tw.Flush()
}

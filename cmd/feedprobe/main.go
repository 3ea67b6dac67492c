// feedprobe connects to the market feed, subscribes a handful of tokens, and
// streams decoded frames to the console. Debugging aid with the same client
// wiring the monitor uses.
//
// Usage: go run ./cmd/feedprobe -assets <token_id>[,<token_id>...] [-duration 2m] [-verbose]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/polysweep/internal/config"
	"github.com/rickgao/polysweep/internal/feed"
)

// staticAssets satisfies feed.ActiveSource with a fixed token set.
type staticAssets []string

func (s staticAssets) ActiveInstruments() []string { return s }

func main() {
	url := flag.String("url", config.DefaultFeedURL, "WebSocket URL for the market channel")
	assetsFlag := flag.String("assets", "", "comma-separated CLOB token ids to subscribe")
	duration := flag.Duration("duration", 0, "stop after this long (0 = until interrupted)")
	verbose := flag.Bool("verbose", false, "print raw frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	var assets staticAssets
	for _, id := range strings.Split(*assetsFlag, ",") {
		if id = strings.TrimSpace(id); id != "" {
			assets = append(assets, id)
		}
	}
	if len(assets) == 0 {
		logger.Error("no assets given, use -assets token_id[,token_id...]")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	mgr := feed.NewManager(feed.ManagerConfig{URL: *url}, assets, logger)

	logger.Info("connecting", "url", *url, "assets", len(assets))
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start feed manager", "error", err)
		os.Exit(1)
	}

	// Frame printer
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-mgr.Messages():
				if !ok {
					return
				}
				printFrame(msg, *verbose)
			}
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"connected", stats.Connected,
					"subscribed", stats.Subscribed,
					"messages", stats.Messages,
					"dropped", stats.Dropped,
					"reconnects", stats.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	mgr.Stop(shutdownCtx)

	stats := mgr.Stats()
	logger.Info("shutdown complete", "messages", stats.Messages, "reconnects", stats.Reconnects)
}

// printFrame renders one feed frame. Snapshot batches arrive as arrays with
// one element per subscribed token.
func printFrame(msg feed.TimestampedMessage, verbose bool) {
	if verbose {
		fmt.Printf("[RAW] %s\n", msg.Data)
	}

	data := []byte(strings.TrimSpace(string(msg.Data)))
	if len(data) == 0 {
		return
	}

	if data[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			fmt.Printf("[UNPARSED] %.120s\n", data)
			return
		}
		for _, part := range parts {
			printOne(part, msg.ReceivedAt)
		}
		return
	}

	printOne(data, msg.ReceivedAt)
}

func printOne(data []byte, receivedAt time.Time) {
	var frame struct {
		EventType string `json:"event_type"`
		Type      string `json:"type"`
		AssetID   string `json:"asset_id"`
		Market    string `json:"market"`
		Bids      []any  `json:"bids"`
		Asks      []any  `json:"asks"`
		Changes   []any  `json:"price_changes"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		fmt.Printf("[UNPARSED] %.120s\n", data)
		return
	}

	kind := frame.EventType
	if kind == "" {
		kind = frame.Type
	}

	switch kind {
	case "book":
		fmt.Printf("[BOOK] asset=%.16s... bids=%d asks=%d at=%s\n",
			frame.AssetID, len(frame.Bids), len(frame.Asks), receivedAt.Format(time.RFC3339))
	case "price_change":
		fmt.Printf("[PRICE_CHANGE] market=%.16s... changes=%d at=%s\n",
			frame.Market, len(frame.Changes), receivedAt.Format(time.RFC3339))
	default:
		fmt.Printf("[%s] %.120s\n", strings.ToUpper(kind), data)
	}
}

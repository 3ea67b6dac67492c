package match

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rickgao/polysweep/internal/model"
)

// resultHeader mirrors the trade CSV schema with the match columns appended.
var resultHeader = []string{
	"id",
	"timestamp",
	"timestamp_iso",
	"wallet",
	"side",
	"price",
	"size",
	"usdc_value",
	"asset",
	"condition_id",
	"outcome",
	"event_slug",
	"transaction_hash",
	"match_tier",
	"matched_session_id",
	"matched_slug",
}

// WriteResultsCSV writes one row per match result, preserving input order.
// Unmatched trades keep their row with empty session columns.
func WriteResultsCSV(path string, results []model.MatchResult) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(resultHeader); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	for i := range results {
		res := &results[i]
		t := &res.Trade

		var sessionID, slug string
		if res.Session != nil {
			sessionID = res.Session.SessionID.String()
			slug = res.Session.MarketSlug
		}

		row := []string{
			t.ID,
			strconv.FormatInt(t.ExecutedAt.Unix(), 10),
			t.ExecutedAt.UTC().Format(time.RFC3339),
			t.Wallet,
			t.TradeSide,
			formatFloat(t.Price),
			formatFloat(t.Size),
			formatFloat(t.USDCValue),
			t.InstrumentID,
			t.ConditionID,
			t.Outcome,
			t.MarketSlug,
			t.TransactionHash,
			string(res.Tier),
			sessionID,
			slug,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush results csv: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

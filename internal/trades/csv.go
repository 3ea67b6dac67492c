package trades

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rickgao/polysweep/internal/model"
)

// csvHeader is the trade CSV schema. Column order is part of the contract.
var csvHeader = []string{
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
}

// WriteCSV writes the full trade set to path, replacing any existing file.
func WriteCSV(path string, records []model.TradeRecord) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trade csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	for i := range records {
		r := &records[i]
		row := []string{
			r.ID,
			strconv.FormatInt(r.ExecutedAt.Unix(), 10),
			r.ExecutedAt.UTC().Format(time.RFC3339),
			r.Wallet,
			r.TradeSide,
			formatFloat(r.Price),
			formatFloat(r.Size),
			formatFloat(r.USDCValue),
			r.InstrumentID,
			r.ConditionID,
			r.Outcome,
			r.MarketSlug,
			r.TransactionHash,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush trade csv: %w", err)
	}
	return f.Close()
}

// ReadCSV loads a trade CSV written by WriteCSV. Columns are located by
// header name, so reordered files still parse.
func ReadCSV(path string) ([]model.TradeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trade csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read trade csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, name := range []string{"timestamp", "side", "price", "size", "asset"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("trade csv missing column %q", name)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	out := make([]model.TradeRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		sec, err := strconv.ParseInt(field(row, "timestamp"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse timestamp: %w", n+1, err)
		}
		price, err := strconv.ParseFloat(field(row, "price"), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse price: %w", n+1, err)
		}
		size, err := strconv.ParseFloat(field(row, "size"), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse size: %w", n+1, err)
		}

		usdc := price * size
		if raw := field(row, "usdc_value"); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				usdc = v
			}
		}

		out = append(out, model.TradeRecord{
			ID:              field(row, "id"),
			Wallet:          field(row, "wallet"),
			InstrumentID:    field(row, "asset"),
			ConditionID:     field(row, "condition_id"),
			MarketSlug:      field(row, "event_slug"),
			Outcome:         field(row, "outcome"),
			TradeSide:       field(row, "side"),
			Price:           price,
			Size:            size,
			USDCValue:       usdc,
			ExecutedAt:      time.Unix(sec, 0).UTC(),
			TransactionHash: field(row, "transaction_hash"),
		})
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

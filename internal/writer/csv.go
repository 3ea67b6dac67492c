package writer

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rickgao/polysweep/internal/model"
)

// EventCSV appends change events to a CSV file, one row per event.
//
// The file is opened in append mode so restarts keep accumulating into the
// same capture. The header is written only when the file is new or empty.
// Every row is flushed immediately so tail -f shows events live.
type EventCSV struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	csv    *csv.Writer
	rows   int64
	logger *slog.Logger
}

// NewEventCSV opens (or creates) the CSV file at path and writes the header
// if the file has no content yet.
func NewEventCSV(path string, logger *slog.Logger) (*EventCSV, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events csv: %w", err)
	}

	w := &EventCSV{
		path:   path,
		file:   f,
		csv:    csv.NewWriter(f),
		logger: logger,
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat events csv: %w", err)
	}
	if info.Size() == 0 {
		if err := w.csv.Write(eventHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	logger.Info("events csv open", "path", path, "existing_bytes", info.Size())
	return w, nil
}

// Write appends one event row and flushes it.
func (w *EventCSV) Write(ev model.ChangeEvent) error {
	record := []string{
		strconv.FormatInt(ev.TimestampMS, 10),
		ev.TimestampISO,
		formatFloat(ev.Price),
		formatFloat(ev.Size),
		formatFloat(ev.SizeDelta),
		string(ev.Side),
		formatFloat(ev.BestBid),
		formatFloat(ev.BestAsk),
		ev.InstrumentID,
		ev.MarketSlug,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return os.ErrClosed
	}
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}

	w.rows++
	return nil
}

// Rows returns the number of rows written in this process.
func (w *EventCSV) Rows() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close flushes pending output and closes the file.
func (w *EventCSV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	w.file = nil

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// formatFloat renders prices and sizes without trailing zero noise.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

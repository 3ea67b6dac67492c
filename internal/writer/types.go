package writer

import (
	"time"
)

// Config contains configuration for the batching Postgres sink.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
	}
}

// eventRow represents a row to be inserted into the change_events table.
type eventRow struct {
	TimestampMS  int64
	Price        float64
	Size         float64
	SizeDelta    float64
	Side         string
	BestBid      float64
	BestAsk      float64
	InstrumentID string
	MarketSlug   string
}

// Metrics holds counters for a batching writer.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// eventHeader is the column order of the change-event CSV. Consumers key on
// these names, so the order is load-bearing.
var eventHeader = []string{
	"timestamp_ms",
	"timestamp_iso",
	"price",
	"size",
	"size_change",
	"side",
	"best_bid",
	"best_ask",
	"instrument_id",
	"market_slug",
}

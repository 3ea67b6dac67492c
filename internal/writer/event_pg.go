package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/polysweep/internal/model"
	"github.com/rickgao/polysweep/internal/router"
)

// EventPG drains change events from the router buffer and batch-inserts them
// into the change_events table.
type EventPG struct {
	cfg    Config
	logger *slog.Logger

	// Input from Message Router
	input *router.Buffer[model.ChangeEvent]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewEventPG creates a new Postgres event sink.
func NewEventPG(
	cfg Config,
	input *router.Buffer[model.ChangeEvent],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *EventPG {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &EventPG{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *EventPG) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event sink started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *EventPG) Stop(ctx context.Context) error {
	w.logger.Info("stopping event sink")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("event sink stopped")
	case <-ctx.Done():
		w.logger.Warn("event sink stop timed out")
	}

	// Drain whatever the consume loop left behind, then flush
	for {
		events := w.input.DrainTo(w.cfg.BatchSize)
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			w.handleEvent(ev)
		}
	}
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *EventPG) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the input buffer and accumulates batches.
func (w *EventPG) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			events := w.input.DrainTo(w.cfg.BatchSize)
			if len(events) == 0 {
				// Buffer empty, wait a bit before trying again
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			for _, ev := range events {
				w.handleEvent(ev)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *EventPG) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (w *EventPG) handleEvent(ev model.ChangeEvent) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a ChangeEvent to an eventRow.
func (w *EventPG) transform(ev model.ChangeEvent) eventRow {
	return eventRow{
		TimestampMS:  ev.TimestampMS,
		Price:        ev.Price,
		Size:         ev.Size,
		SizeDelta:    ev.SizeDelta,
		Side:         string(ev.Side),
		BestBid:      ev.BestBid,
		BestAsk:      ev.BestAsk,
		InstrumentID: ev.InstrumentID,
		MarketSlug:   ev.MarketSlug,
	}
}

// flush writes the current batch to the database.
func (w *EventPG) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
// Replayed frames after a reconnect land on the same key and are dropped
// by the database rather than deduplicated in memory.
func (w *EventPG) batchInsert(rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO change_events (timestamp_ms, price, size, size_change, side, best_bid, best_ask, instrument_id, market_slug)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (instrument_id, timestamp_ms, price, side) DO NOTHING
		`, r.TimestampMS, r.Price, r.Size, r.SizeDelta, r.Side, r.BestBid, r.BestAsk, r.InstrumentID, r.MarketSlug)
	}

	// Not tied to the run context so the final flush during Stop still lands.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

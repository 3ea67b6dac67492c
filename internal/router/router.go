package router

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/polysweep/internal/book"
	"github.com/rickgao/polysweep/internal/feed"
	"github.com/rickgao/polysweep/internal/model"
)

// InstrumentLookup resolves an asset id to its watched instrument.
// market.Registry satisfies this.
type InstrumentLookup interface {
	Get(instrumentID string) (*model.WatchedInstrument, bool)
}

// Router decodes raw feed frames and runs every price level through the
// detector, pushing emitted ChangeEvents into the output buffer.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router and closes the event buffer.
	Stop(ctx context.Context) error

	// Events returns the output buffer for writers to drain.
	Events() *Buffer[model.ChangeEvent]

	// Stats returns current router statistics.
	Stats() Stats
}

// router is the internal implementation.
type router struct {
	cfg      Config
	logger   *slog.Logger
	detector *book.Detector
	lookup   InstrumentLookup

	// Input from Feed Manager
	input <-chan feed.TimestampedMessage

	// Output to Writers
	events *Buffer[model.ChangeEvent]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	mu              sync.RWMutex
	received        int64
	inspected       int64
	emitted         int64
	parseErrors     int64
	unknownMessages int64
	inactiveDropped int64
}

// NewRouter creates a new Router.
func NewRouter(cfg Config, input <-chan feed.TimestampedMessage, detector *book.Detector, lookup InstrumentLookup, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &router{
		cfg:      cfg,
		logger:   logger,
		detector: detector,
		lookup:   lookup,
		input:    input,
		events:   NewBuffer[model.ChangeEvent](cfg.BufferSize),
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("router started",
		"buffer", r.cfg.BufferSize,
		"target", r.detector.Target,
		"tolerance", r.detector.Tolerance,
	)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping router")

	if r.cancel != nil {
		r.cancel()
	}

	// Wait for goroutine to finish
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("router stopped")
	case <-ctx.Done():
		r.logger.Warn("router stop timed out")
	}

	// Close output buffer so writers drain and exit
	r.events.Close()

	return nil
}

// Events returns the output buffer.
func (r *router) Events() *Buffer[model.ChangeEvent] {
	return r.events
}

// Stats returns current statistics.
func (r *router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		MessagesReceived: r.received,
		LevelsInspected:  r.inspected,
		EventsEmitted:    r.emitted,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		InactiveDropped:  r.inactiveDropped,
		Buffer:           r.events.Stats(),
	}
}

// routeLoop is the main routing goroutine. Single consumer, so events reach
// the buffer in arrival order.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(msg)
		}
	}
}

// route handles a single raw frame.
func (r *router) route(msg feed.TimestampedMessage) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	data := bytes.TrimSpace(msg.Data)
	if len(data) == 0 {
		return
	}

	// Book snapshots for a fresh subscription arrive batched in one array
	// frame, one element per subscribed token.
	if data[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			r.countParseError("array", err)
			return
		}
		for _, part := range parts {
			r.routeOne(part, msg.ReceivedAt)
		}
		return
	}

	r.routeOne(data, msg.ReceivedAt)
}

// routeOne parses and dispatches one message object.
func (r *router) routeOne(data []byte, receivedAt time.Time) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		r.countParseError("envelope", err)
		return
	}

	switch envelope.kind() {
	case "book":
		r.handleBook(data, receivedAt)

	case "price_change":
		r.handlePriceChange(data, receivedAt)

	case "tick_size_change", "last_trade_price":
		// Known channel traffic that carries no resting size.

	default:
		r.mu.Lock()
		r.unknownMessages++
		r.mu.Unlock()
		r.logger.Debug("skipping message type", "type", envelope.kind())
	}
}

// handleBook processes a full book snapshot: every level is inspected
// against the batch's own best bid/ask.
func (r *router) handleBook(data []byte, receivedAt time.Time) {
	var wire bookWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.countParseError("book", err)
		return
	}

	inst, ok := r.activeInstrument(wire.AssetID)
	if !ok {
		return
	}

	ts := eventTime(wire.Timestamp, receivedAt)

	// Highest bid first, lowest ask first; the wire does not promise order.
	bids := make([]levelWire, len(wire.Bids))
	copy(bids, wire.Bids)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	asks := make([]levelWire, len(wire.Asks))
	copy(asks, wire.Asks)
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	bctx := model.BookContext{}
	if len(bids) > 0 {
		bctx.BestBid = bids[0].Price.Float64()
		bctx.HasBid = true
	}
	if len(asks) > 0 {
		bctx.BestAsk = asks[0].Price.Float64()
		bctx.HasAsk = true
	}

	for _, lvl := range bids {
		r.inspect(inst, lvl.Price.Float64(), lvl.Size.Float64(), bctx, ts)
	}
	for _, lvl := range asks {
		r.inspect(inst, lvl.Price.Float64(), lvl.Size.Float64(), bctx, ts)
	}
}

// handlePriceChange processes a change batch: each entry carries its own
// best bid/ask context.
func (r *router) handlePriceChange(data []byte, receivedAt time.Time) {
	var wire priceChangeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.countParseError("price_change", err)
		return
	}

	ts := eventTime(wire.Timestamp, receivedAt)

	for _, change := range wire.PriceChanges {
		inst, ok := r.activeInstrument(change.AssetID)
		if !ok {
			continue
		}

		bctx := model.BookContext{
			BestBid: change.BestBid.Float64(),
			BestAsk: change.BestAsk.Float64(),
		}
		bctx.HasBid = bctx.BestBid > 0
		bctx.HasAsk = bctx.BestAsk > 0

		r.inspect(inst, change.Price.Float64(), change.Size.Float64(), bctx, ts)
	}
}

// inspect runs one observed level through the detector.
func (r *router) inspect(inst *model.WatchedInstrument, price, size float64, bctx model.BookContext, ts time.Time) {
	r.mu.Lock()
	r.inspected++
	r.mu.Unlock()

	ev, ok := r.detector.Inspect(inst.InstrumentID, inst.MarketSlug, price, size, bctx, ts)
	if !ok {
		return
	}

	if r.events.Send(ev) {
		r.mu.Lock()
		r.emitted++
		r.mu.Unlock()
	}
}

// activeInstrument resolves an asset id, dropping unknown ids and ids whose
// market already ended.
func (r *router) activeInstrument(assetID string) (*model.WatchedInstrument, bool) {
	if assetID == "" {
		return nil, false
	}

	inst, ok := r.lookup.Get(assetID)
	if !ok {
		r.logger.Debug("unknown asset id", "asset_id", assetID)
		return nil, false
	}
	if !inst.Active() {
		r.mu.Lock()
		r.inactiveDropped++
		r.mu.Unlock()
		return nil, false
	}

	return inst, true
}

func (r *router) countParseError(kind string, err error) {
	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()
	r.logger.Warn("failed to decode message", "kind", kind, "error", err)
}

// eventTime prefers the exchange timestamp, falling back to local receive
// time when the frame carries none.
func eventTime(ts FlexInt64, receivedAt time.Time) time.Time {
	if ms := ts.Int64(); ms > 0 {
		return time.UnixMilli(ms)
	}
	return receivedAt
}

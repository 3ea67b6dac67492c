package book

import (
	"math"
	"time"

	"github.com/rickgao/polysweep/internal/model"
)

// Detector turns raw price-level observations into ChangeEvents.
//
// An event is emitted only when the price is within Tolerance of Target and
// the cache reports a non-zero delta for the classified (instrument, price,
// side) key. Everything else is silently discarded.
type Detector struct {
	Target    float64
	Tolerance float64
	Classify  ClassifyFunc
	Cache     *Cache
}

// NewDetector returns a detector using DefaultClassify and a fresh cache.
func NewDetector(target, tolerance float64) *Detector {
	return &Detector{
		Target:    target,
		Tolerance: tolerance,
		Classify:  DefaultClassify,
		Cache:     NewCache(),
	}
}

// Inspect processes one observed level. The returned event carries the batch's
// best bid/ask and the receive timestamp in both epoch-ms and RFC 3339 form.
func (d *Detector) Inspect(instrumentID, marketSlug string, price, size float64, ctx model.BookContext, ts time.Time) (model.ChangeEvent, bool) {
	if math.Abs(price-d.Target) >= d.Tolerance {
		return model.ChangeEvent{}, false
	}

	side := d.Classify(price, ctx)

	delta, ok := d.Cache.Observe(instrumentID, price, side, size)
	if !ok {
		return model.ChangeEvent{}, false
	}

	return model.ChangeEvent{
		TimestampMS:  ts.UnixMilli(),
		TimestampISO: ts.UTC().Format(time.RFC3339Nano),
		InstrumentID: instrumentID,
		MarketSlug:   marketSlug,
		Price:        price,
		Side:         side,
		Size:         size,
		SizeDelta:    delta,
		BestBid:      ctx.BestBid,
		BestAsk:      ctx.BestAsk,
	}, true
}

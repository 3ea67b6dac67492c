package match

import (
	"sort"
	"time"

	"github.com/rickgao/polysweep/internal/model"
)

// Position is the net of all fills sharing (slug, token, outcome, side).
type Position struct {
	MarketSlug   string
	InstrumentID string
	Outcome      string
	TradeSide    string
	Fills        int
	TotalSize    float64
	TotalUSDC    float64
	AvgPrice     float64
	FirstAt      time.Time
	LastAt       time.Time
}

// AggregatePositions folds individual fills into per-position totals,
// ordered newest first.
func AggregatePositions(trades []model.TradeRecord) []Position {
	type key struct {
		slug       string
		instrument string
		outcome    string
		side       string
	}

	idx := make(map[key]int)
	var out []Position

	for i := range trades {
		t := &trades[i]
		k := key{t.MarketSlug, t.InstrumentID, t.Outcome, t.TradeSide}
		j, ok := idx[k]
		if !ok {
			j = len(out)
			idx[k] = j
			out = append(out, Position{
				MarketSlug:   t.MarketSlug,
				InstrumentID: t.InstrumentID,
				Outcome:      t.Outcome,
				TradeSide:    t.TradeSide,
				FirstAt:      t.ExecutedAt,
				LastAt:       t.ExecutedAt,
			})
		}

		p := &out[j]
		p.Fills++
		p.TotalSize += t.Size
		p.TotalUSDC += t.USDCValue
		if t.ExecutedAt.Before(p.FirstAt) {
			p.FirstAt = t.ExecutedAt
		}
		if t.ExecutedAt.After(p.LastAt) {
			p.LastAt = t.ExecutedAt
		}
	}

	for i := range out {
		if out[i].TotalSize > 0 {
			out[i].AvgPrice = out[i].TotalUSDC / out[i].TotalSize
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FirstAt.After(out[j].FirstAt)
	})
	return out
}

// Summary is the reconciliation roll-up the matcher CLI prints.
type Summary struct {
	Total     int
	Tiers     map[model.MatchTier]int
	Unmatched int
	Positions []Position
}

// Summarize counts results per tier and aggregates the underlying fills
// into positions.
func Summarize(results []model.MatchResult) Summary {
	s := Summary{
		Total: len(results),
		Tiers: make(map[model.MatchTier]int),
	}

	trades := make([]model.TradeRecord, 0, len(results))
	for i := range results {
		s.Tiers[results[i].Tier]++
		if results[i].Tier == model.TierNone {
			s.Unmatched++
		}
		trades = append(trades, results[i].Trade)
	}

	s.Positions = AggregatePositions(trades)
	return s
}

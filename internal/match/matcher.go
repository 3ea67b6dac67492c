package match

import (
	"regexp"
	"strings"
	"time"

	"github.com/rickgao/polysweep/internal/model"
)

// Embedded calendar date, optionally followed by a clock time.
var datePattern = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}(-\d{2}:\d{2})?$`)

// Unix start suffix on rolling-window slugs.
var windowPattern = regexp.MustCompile(`-\d{9,}$`)

// NormalizeSlug strips the embedded date or window component from a market
// slug so trades and sessions from different calendar windows of the same
// recurring market compare equal. A trailing clock time survives the date
// strip: the time is the slot identity, the date is not.
func NormalizeSlug(slug string) string {
	slug = strings.TrimSpace(slug)
	slug = datePattern.ReplaceAllString(slug, "$1")
	slug = windowPattern.ReplaceAllString(slug, "")
	return slug
}

type exactKey struct {
	slug       string
	instrument string
}

// Matcher reconciles executed trades against recorded watch sessions.
type Matcher struct {
	byCondition map[string][]*model.SessionRecord
	byExact     map[exactKey][]*model.SessionRecord
	bySlug      map[string][]*model.SessionRecord
}

// New indexes sessions for matching. Sessions without a condition ID simply
// never participate in the condition tier.
func New(sessions []*model.SessionRecord) *Matcher {
	m := &Matcher{
		byCondition: make(map[string][]*model.SessionRecord),
		byExact:     make(map[exactKey][]*model.SessionRecord),
		bySlug:      make(map[string][]*model.SessionRecord),
	}

	for _, s := range sessions {
		if s == nil {
			continue
		}
		if s.ConditionID != "" {
			m.byCondition[s.ConditionID] = append(m.byCondition[s.ConditionID], s)
		}
		norm := NormalizeSlug(s.MarketSlug)
		if norm == "" {
			continue
		}
		m.bySlug[norm] = append(m.bySlug[norm], s)
		if s.InstrumentID != "" {
			k := exactKey{slug: norm, instrument: s.InstrumentID}
			m.byExact[k] = append(m.byExact[k], s)
		}
	}
	return m
}

// Match finds the best session for a trade. Tier order is strict: a
// condition-ID match wins over a temporally closer slug match, and no tier
// falls through once it has candidates.
func (m *Matcher) Match(trade model.TradeRecord) model.MatchResult {
	if trade.ConditionID != "" {
		if cands := m.byCondition[trade.ConditionID]; len(cands) > 0 {
			return model.MatchResult{Trade: trade, Session: pick(cands, trade), Tier: model.TierConditionID}
		}
	}

	norm := NormalizeSlug(trade.MarketSlug)
	if norm != "" && trade.InstrumentID != "" {
		if cands := m.byExact[exactKey{slug: norm, instrument: trade.InstrumentID}]; len(cands) > 0 {
			return model.MatchResult{Trade: trade, Session: pick(cands, trade), Tier: model.TierExact}
		}
	}
	if norm != "" {
		if cands := m.bySlug[norm]; len(cands) > 0 {
			return model.MatchResult{Trade: trade, Session: pick(cands, trade), Tier: model.TierSlugOnly}
		}
	}

	return model.MatchResult{Trade: trade, Tier: model.TierNone}
}

// MatchAll matches every trade, preserving input order.
func (m *Matcher) MatchAll(trades []model.TradeRecord) []model.MatchResult {
	out := make([]model.MatchResult, len(trades))
	for i := range trades {
		out[i] = m.Match(trades[i])
	}
	return out
}

// pick resolves ties within a tier: closest window midpoint to the execution
// time, then matching outcome, then instrument ID for determinism.
func pick(cands []*model.SessionRecord, trade model.TradeRecord) *model.SessionRecord {
	best := cands[0]
	for _, s := range cands[1:] {
		if closerFit(s, best, trade) {
			best = s
		}
	}
	return best
}

func closerFit(a, b *model.SessionRecord, trade model.TradeRecord) bool {
	da := windowDistance(a, trade.ExecutedAt)
	db := windowDistance(b, trade.ExecutedAt)
	if da != db {
		return da < db
	}
	am := a.Outcome != "" && a.Outcome == trade.Outcome
	bm := b.Outcome != "" && b.Outcome == trade.Outcome
	if am != bm {
		return am
	}
	return a.InstrumentID < b.InstrumentID
}

// windowDistance is the gap between the session's window midpoint and the
// trade time. Sessions without any time information sort last.
func windowDistance(s *model.SessionRecord, at time.Time) time.Duration {
	start, end := s.WindowStart, s.WindowEnd
	if start.IsZero() {
		start = s.RegisteredAt
	}
	if end.IsZero() {
		end = s.EndedAt
	}
	if end.IsZero() {
		end = start
	}
	if start.IsZero() {
		start = end
	}
	if start.IsZero() {
		return maxDuration
	}

	mid := start.Add(end.Sub(start) / 2)
	if at.After(mid) {
		return at.Sub(mid)
	}
	return mid.Sub(at)
}

const maxDuration = time.Duration(1<<63 - 1)

package catalog

import (
	"github.com/rickgao/polysweep/internal/model"
)

// Instruments expands an event into one watched instrument per CLOB token
// of its first market. The asset stem may be empty for non-windowed events.
func Instruments(ev *Event, asset string) ([]*model.WatchedInstrument, error) {
	if len(ev.Markets) == 0 {
		return nil, ErrNoMarkets
	}
	m := &ev.Markets[0]

	tokens := m.TokenIDs()
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	slug := ev.Slug
	if slug == "" {
		slug = m.Slug
	}

	end := m.EndTime()
	if end.IsZero() {
		end = ev.EndTime()
	}

	outcomes := []string(m.Outcomes)
	insts := make([]*model.WatchedInstrument, 0, len(tokens))
	for i, tok := range tokens {
		outcome := ""
		if i < len(outcomes) {
			outcome = outcomes[i]
		}
		insts = append(insts, &model.WatchedInstrument{
			InstrumentID: tok,
			MarketSlug:   slug,
			ConditionID:  m.ConditionID,
			Outcome:      outcome,
			Asset:        asset,
			EndTime:      end,
		})
	}
	return insts, nil
}

package market

import (
	"log/slog"

	"github.com/rickgao/polysweep/internal/model"
)

// registryImpl implements the Registry interface.
type registryImpl struct {
	logger *slog.Logger
	state  *registryState
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &registryImpl{
		logger: logger,
		state:  newState(),
	}
}

// Register adds an instrument to the watch set.
func (r *registryImpl) Register(inst *model.WatchedInstrument) error {
	added, err := r.state.register(inst)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}

	r.state.notifyChange(Change{
		Type:         ChangeRegistered,
		InstrumentID: inst.InstrumentID,
		MarketSlug:   inst.MarketSlug,
	})

	r.logger.Info("instrument registered",
		"instrument_id", inst.InstrumentID,
		"market_slug", inst.MarketSlug,
		"session_id", inst.SessionID,
	)
	return nil
}

// MarkEnded transitions an instrument to ENDED.
func (r *registryImpl) MarkEnded(instrumentID string) error {
	changed, slug, err := r.state.markEnded(instrumentID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	r.state.notifyChange(Change{
		Type:         ChangeEnded,
		InstrumentID: instrumentID,
		MarketSlug:   slug,
	})

	r.logger.Info("instrument ended",
		"instrument_id", instrumentID,
		"market_slug", slug,
	)
	return nil
}

// AllEnded reports whether every registered instrument has ENDED.
func (r *registryImpl) AllEnded() bool {
	return r.state.allEnded()
}

// ActiveInstruments returns the sorted IDs of all ACTIVE instruments.
func (r *registryImpl) ActiveInstruments() []string {
	return r.state.activeIDs()
}

// Active returns copies of all ACTIVE instruments.
func (r *registryImpl) Active() []*model.WatchedInstrument {
	return r.state.active()
}

// Get returns a copy of one instrument by ID.
func (r *registryImpl) Get(instrumentID string) (*model.WatchedInstrument, bool) {
	return r.state.get(instrumentID)
}

// All returns copies of every registered instrument.
func (r *registryImpl) All() []*model.WatchedInstrument {
	return r.state.all()
}

// Changes returns the lifecycle transition channel.
func (r *registryImpl) Changes() <-chan Change {
	return r.state.changes
}

// Reset discards every instrument at window rollover.
func (r *registryImpl) Reset() {
	n := r.state.reset()
	r.logger.Info("registry reset", "discarded", n)
}

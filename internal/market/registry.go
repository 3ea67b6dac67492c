package market

import (
	"errors"

	"github.com/rickgao/polysweep/internal/model"
)

// ChangeBufferSize is the capacity of the Change channel.
const ChangeBufferSize = 256

// Registry errors.
var (
	ErrEmptyInstrumentID = errors.New("instrument id is empty")
	ErrUnknownInstrument = errors.New("instrument not registered")
	ErrInstrumentReused  = errors.New("instrument already ended, ids are never reused")
)

// Registry manages the watched-instrument set and its lifecycle.
type Registry interface {
	// Register adds an instrument to the watch set, assigning its session ID
	// and registration time if unset. Registering an id that is already ACTIVE
	// is a no-op; re-registering an ENDED id returns ErrInstrumentReused.
	Register(inst *model.WatchedInstrument) error

	// MarkEnded transitions an instrument to ENDED. Transitions are one-way;
	// marking an already-ENDED instrument again is a no-op.
	MarkEnded(instrumentID string) error

	// AllEnded reports whether every registered instrument has ENDED.
	// An empty registry is "not yet started", never "all ended".
	AllEnded() bool

	// ActiveInstruments returns the sorted IDs of all ACTIVE instruments.
	ActiveInstruments() []string

	// Active returns copies of all ACTIVE instruments.
	Active() []*model.WatchedInstrument

	// Get returns a copy of one instrument by ID.
	Get(instrumentID string) (*model.WatchedInstrument, bool)

	// All returns copies of every registered instrument.
	All() []*model.WatchedInstrument

	// Changes returns a channel of lifecycle transitions. The channel is
	// buffered and drops the oldest entry on overflow; consumers get eventual
	// notification, not a complete history.
	Changes() <-chan Change

	// Reset discards every instrument at window rollover. The change channel
	// survives a reset.
	Reset()
}

// ChangeType classifies an instrument lifecycle transition.
type ChangeType string

const (
	ChangeRegistered ChangeType = "registered"
	ChangeEnded      ChangeType = "ended"
)

// Change represents an instrument state transition.
type Change struct {
	Type         ChangeType
	InstrumentID string
	MarketSlug   string
}

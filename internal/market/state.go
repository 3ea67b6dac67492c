package market

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/polysweep/internal/model"
)

// registryState holds the thread-safe instrument cache.
type registryState struct {
	mu sync.RWMutex

	// All known instruments indexed by instrument ID.
	instruments map[string]*model.WatchedInstrument

	// Instruments currently ACTIVE.
	activeSet map[string]struct{}

	// Output channel for the feed manager.
	changes chan Change
}

func newState() *registryState {
	return &registryState{
		instruments: make(map[string]*model.WatchedInstrument),
		activeSet:   make(map[string]struct{}),
		changes:     make(chan Change, ChangeBufferSize),
	}
}

// register stores a new instrument (write-locked). Reports whether the
// instrument was actually added; assigned fields are written back to inst.
func (s *registryState) register(inst *model.WatchedInstrument) (added bool, err error) {
	if inst == nil || inst.InstrumentID == "" {
		return false, ErrEmptyInstrumentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.instruments[inst.InstrumentID]; ok {
		if existing.Status == model.StatusEnded {
			return false, ErrInstrumentReused
		}
		return false, nil
	}

	cp := *inst
	if cp.SessionID == uuid.Nil {
		cp.SessionID = uuid.New()
	}
	if cp.Status == "" {
		cp.Status = model.StatusActive
	}
	if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = time.Now().UTC()
	}

	s.instruments[cp.InstrumentID] = &cp
	if cp.Status == model.StatusActive {
		s.activeSet[cp.InstrumentID] = struct{}{}
	}

	*inst = cp
	return true, nil
}

// markEnded transitions one instrument to ENDED (write-locked). Reports
// whether the status actually changed.
func (s *registryState) markEnded(instrumentID string) (changed bool, slug string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instruments[instrumentID]
	if !ok {
		return false, "", ErrUnknownInstrument
	}
	if inst.Status == model.StatusEnded {
		return false, inst.MarketSlug, nil
	}

	inst.Status = model.StatusEnded
	inst.EndedAt = time.Now().UTC()
	delete(s.activeSet, instrumentID)
	return true, inst.MarketSlug, nil
}

// get returns a copy of one instrument (read-locked).
func (s *registryState) get(instrumentID string) (*model.WatchedInstrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[instrumentID]
	if !ok {
		return nil, false
	}
	cp := *inst
	return &cp, true
}

// activeIDs returns the sorted ACTIVE instrument IDs (read-locked).
func (s *registryState) activeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.activeSet))
	for id := range s.activeSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// active returns copies of all ACTIVE instruments (read-locked).
func (s *registryState) active() []*model.WatchedInstrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.WatchedInstrument, 0, len(s.activeSet))
	for id := range s.activeSet {
		if inst, ok := s.instruments[id]; ok {
			cp := *inst
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].InstrumentID < result[j].InstrumentID })
	return result
}

// all returns copies of every registered instrument (read-locked).
func (s *registryState) all() []*model.WatchedInstrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.WatchedInstrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		cp := *inst
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].InstrumentID < result[j].InstrumentID })
	return result
}

// allEnded reports the aggregate signal (read-locked).
func (s *registryState) allEnded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instruments) > 0 && len(s.activeSet) == 0
}

// reset discards all instruments (write-locked) and returns how many there were.
func (s *registryState) reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.instruments)
	s.instruments = make(map[string]*model.WatchedInstrument)
	s.activeSet = make(map[string]struct{})
	return n
}

// notifyChange sends a change to the changes channel (non-blocking).
func (s *registryState) notifyChange(change Change) {
	select {
	case s.changes <- change:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-s.changes:
			s.changes <- change
		default:
		}
	}
}

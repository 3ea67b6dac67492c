package book

import (
	"sync"

	"github.com/rickgao/polysweep/internal/model"
)

// Cache holds the last observed size for every tracked price level.
type Cache struct {
	mu     sync.Mutex
	levels map[model.PriceLevelKey]float64
}

// NewCache returns an empty level cache.
func NewCache() *Cache {
	return &Cache{
		levels: make(map[model.PriceLevelKey]float64),
	}
}

// Observe records size at a level and returns the change against the prior
// observation for that exact (instrument, price, side) key.
//
// First sighting of a key stores the size and returns it as a full-size delta.
// A zero delta, including a first sighting at size zero, returns ok=false;
// the entry is still recorded so a later size produces a correct delta.
func (c *Cache) Observe(instrumentID string, price float64, side model.Side, size float64) (delta float64, ok bool) {
	key := model.PriceLevelKey{InstrumentID: instrumentID, Price: price, Side: side}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, seen := c.levels[key]
	if !seen {
		c.levels[key] = size
		return size, size != 0
	}

	delta = size - last
	if delta == 0 {
		return 0, false
	}

	c.levels[key] = size
	return delta, true
}

// PurgeInstrument drops every tracked level for an instrument and returns the
// number of entries removed. Called when the instrument transitions to ENDED
// so long-running rollover sessions do not accumulate dead keys.
func (c *Cache) PurgeInstrument(instrumentID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.levels {
		if key.InstrumentID == instrumentID {
			delete(c.levels, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked levels.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.levels)
}

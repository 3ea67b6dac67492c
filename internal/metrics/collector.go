package metrics

import (
	"sync"
	"time"
)

// Collector aggregates component stats for the /stats endpoint. Components
// register a closure once at wiring time; every Snapshot call re-reads them,
// so the values are always current without the collector polling anything.
type Collector struct {
	mu      sync.RWMutex
	started time.Time
	sources map[string]func() any
}

// NewCollector creates a collector with its uptime clock started.
func NewCollector() *Collector {
	return &Collector{
		started: time.Now(),
		sources: make(map[string]func() any),
	}
}

// Register adds a named stats source. Registering the same name again
// replaces the previous source.
func (c *Collector) Register(name string, fn func() any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = fn
}

// Snapshot reads every source and returns the combined view.
func (c *Collector) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.sources)+2)
	out["started_at"] = c.started.UTC().Format(time.RFC3339)
	out["uptime"] = time.Since(c.started).Round(time.Second).String()
	for name, fn := range c.sources {
		out[name] = fn()
	}
	return out
}

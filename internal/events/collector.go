package events

import "sync"

// DefaultCollectorLimit bounds a collector that was created without an
// explicit capacity.
const DefaultCollectorLimit = 10000

// Collector is a bounded in-memory event sink. When full it drops the
// oldest events. Safe for concurrent use: a runner can publish while
// readers page through the history.
type Collector struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewCollector creates a collector retaining at most limit events.
// A non-positive limit selects DefaultCollectorLimit.
func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = DefaultCollectorLimit
	}
	return &Collector{limit: limit}
}

// Publish implements Sink.
func (c *Collector) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) >= c.limit {
		c.events = c.events[1:]
	}
	c.events = append(c.events, e)
}

// Filter selects events by type and tick range. The zero Filter matches
// everything. MaxTick <= 0 means no upper bound.
type Filter struct {
	Types   []string
	MinTick int
	MaxTick int
}

func (f Filter) matches(e Event) bool {
	if e.Tick < f.MinTick {
		return false
	}
	if f.MaxTick > 0 && e.Tick > f.MaxTick {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}

// Events returns the retained events matching the filter, oldest first.
func (c *Collector) Events(f Filter) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Event, 0, len(c.events))
	for _, e := range c.events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len reports how many events are currently retained.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Clear discards the retained history.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

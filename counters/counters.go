// Package counters holds the shared write/error/drop counters exported by
// every bus in the process, keyed by device path.
package counters

import "sync"

// Counters is a registry of per-device counters. A single instance is
// shared across all BusAssemblies in a process.
type Counters struct {
	mu     sync.Mutex
	writes map[string]uint64
	errors map[string]uint64
	drops  map[string]uint64
}

// New creates an empty counter registry.
func New() *Counters {
	return &Counters{
		writes: make(map[string]uint64),
		errors: make(map[string]uint64),
		drops:  make(map[string]uint64),
	}
}

// IncWrites increments the write counter for device.
func (c *Counters) IncWrites(device string) {
	c.mu.Lock()
	c.writes[device]++
	c.mu.Unlock()
}

// IncErrors increments the write-error counter for device.
func (c *Counters) IncErrors(device string) {
	c.mu.Lock()
	c.errors[device]++
	c.mu.Unlock()
}

// IncDrops increments the drop counter for device.
func (c *Counters) IncDrops(device string) {
	c.mu.Lock()
	c.drops[device]++
	c.mu.Unlock()
}

// Writes returns the current write count for device.
func (c *Counters) Writes(device string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[device]
}

// Errors returns the current write-error count for device.
func (c *Counters) Errors(device string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors[device]
}

// Drops returns the current drop count for device.
func (c *Counters) Drops(device string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drops[device]
}

// Snapshot returns a point-in-time copy of all three maps, suitable for
// exposing read-only to observers (e.g. an export-map-style diagnostics
// endpoint).
func (c *Counters) Snapshot() (writes, errors, drops map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	writes = make(map[string]uint64, len(c.writes))
	for k, v := range c.writes {
		writes[k] = v
	}
	errors = make(map[string]uint64, len(c.errors))
	for k, v := range c.errors {
		errors[k] = v
	}
	drops = make(map[string]uint64, len(c.drops))
	for k, v := range c.drops {
		drops[k] = v
	}
	return writes, errors, drops
}

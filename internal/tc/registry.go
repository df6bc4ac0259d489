package tc

import (
	"sync"
	"time"

	"github.com/bresilla/tractor-isobus/internal/implement"
)

// ValueRecord is one cached process-data value and when it was reported.
type ValueRecord struct {
	Value     int32
	UpdatedAt time.Time
}

// RegistryStats contains cache statistics for the diagnostics API.
type RegistryStats struct {
	Tracked    int
	Updates    uint64
	LastUpdate time.Time
}

// Registry caches the most recent reported value of every process-data
// quantity the harness has pushed. The API and the websocket hub read
// from it instead of re-invoking dispatcher handlers.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	values  map[implement.Target]ValueRecord
	updates uint64
	last    time.Time
}

// NewRegistry creates an empty value cache.
func NewRegistry() *Registry {
	return &Registry{values: make(map[implement.Target]ValueRecord)}
}

// Record stores the latest value for a target and reports whether it
// differs from the previous one. The first record of a target counts as
// a change.
func (r *Registry) Record(target implement.Target, value int32) bool {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.values[target]
	r.values[target] = ValueRecord{Value: value, UpdatedAt: now}
	r.updates++
	r.last = now

	return !seen || prev.Value != value
}

// Value returns the cached record for a target.
func (r *Registry) Value(target implement.Target) (ValueRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.values[target]
	return rec, ok
}

// Snapshot returns a copy of every cached record. Callers may mutate the
// returned map freely.
func (r *Registry) Snapshot() map[implement.Target]ValueRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[implement.Target]ValueRecord, len(r.values))
	for target, rec := range r.values {
		out[target] = rec
	}
	return out
}

// Len returns the number of tracked targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.values)
}

// Stats returns cache statistics.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Tracked:    len(r.values),
		Updates:    r.updates,
		LastUpdate: r.last,
	}
}

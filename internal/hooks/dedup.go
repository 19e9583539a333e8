// dedup.go deduplicates hook requests across delivery channels.
//
// A request can arrive via NATS push and again via HTTP polling before the
// controller learns it was handled. The deduplicator is a bounded seen-set
// of request IDs: the first channel to mark an ID wins, later arrivals are
// dropped.
package hooks

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// defaultMaxSeen bounds the seen-set. When exceeded, the oldest tenth of
// the entries is evicted.
const defaultMaxSeen = 1000

// Deduplicator tracks seen request IDs. Safe for concurrent use from the
// NATS consumer and the poller.
type Deduplicator struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	maxSeen int
	logger  *slog.Logger
}

// NewDeduplicator creates a request deduplicator.
func NewDeduplicator(logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		seen:    make(map[string]time.Time),
		maxSeen: defaultMaxSeen,
		logger:  logger,
	}
}

// MarkSeen records a request ID. It returns true if the ID is new and the
// request should be handled, false if it was already seen.
func (d *Deduplicator) MarkSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = time.Now()

	if len(d.seen) > d.maxSeen {
		d.evictOldest()
	}
	return true
}

// IsSeen reports whether an ID has been marked, without marking it.
func (d *Deduplicator) IsSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Count returns the number of tracked IDs.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evictOldest drops the oldest tenth of the seen-set. Caller holds d.mu.
func (d *Deduplicator) evictOldest() {
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(d.seen))
	for id, at := range d.seen {
		entries = append(entries, entry{id, at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })

	toRemove := d.maxSeen / 10
	if toRemove < 1 {
		toRemove = 1
	}
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(d.seen, entries[i].id)
	}

	d.logger.Debug("evicted old request IDs",
		slog.Int("removed", toRemove),
		slog.Int("remaining", len(d.seen)),
	)
}

package usecase

import (
	"sync"
	"time"
)

// Deduper tracks which source messages have already been ingested. It keeps a
// high-water timestamp for cheap store queries plus a bounded id set that
// shields against rows sharing the boundary timestamp. Eviction order is
// arbitrary; the set only needs to cover the recent past.
type Deduper struct {
	mu        sync.Mutex
	highWater time.Time
	seen      map[string]struct{}
	capacity  int
}

func NewDeduper(capacity int, start time.Time) *Deduper {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Deduper{
		highWater: start,
		seen:      make(map[string]struct{}, capacity),
		capacity:  capacity,
	}
}

// Since returns the timestamp to query the message store from. A one second
// overlap re-reads the boundary so the id set can do its job.
func (d *Deduper) Since() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.highWater.IsZero() {
		return d.highWater
	}
	return d.highWater.Add(-time.Second)
}

// Observe registers a message and reports whether it is new. Duplicate ids
// return false and leave state untouched.
func (d *Deduper) Observe(id string, ts time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}
	if len(d.seen) >= d.capacity {
		for k := range d.seen {
			delete(d.seen, k)
			break
		}
	}
	d.seen[id] = struct{}{}
	if ts.After(d.highWater) {
		d.highWater = ts
	}
	return true
}

package usecase

import (
	"fmt"
	"testing"
	"time"
)

func TestDeduperRejectsDuplicateIDs(t *testing.T) {
	d := NewDeduper(100, time.Time{})
	ts := time.Now()

	if !d.Observe("m1", ts) {
		t.Fatal("first observation must be new")
	}
	if d.Observe("m1", ts.Add(time.Minute)) {
		t.Fatal("duplicate id must be rejected")
	}
}

func TestDeduperHighWaterAdvancesMonotonically(t *testing.T) {
	start := time.Now()
	d := NewDeduper(100, start)

	d.Observe("m1", start.Add(10*time.Second))
	d.Observe("m2", start.Add(5*time.Second)) // out of order, must not regress

	since := d.Since()
	want := start.Add(10 * time.Second).Add(-time.Second)
	if !since.Equal(want) {
		t.Errorf("since = %v, want %v (high water minus overlap)", since, want)
	}
}

func TestDeduperEvictsAtCapacity(t *testing.T) {
	d := NewDeduper(10, time.Time{})
	ts := time.Now()

	for i := 0; i < 25; i++ {
		if !d.Observe(fmt.Sprintf("m%d", i), ts.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("m%d should be new", i)
		}
	}
	if len(d.seen) > 10 {
		t.Errorf("seen set grew to %d, capacity is 10", len(d.seen))
	}
	// Recent ids may have been evicted too (arbitrary order); re-observing an
	// evicted id is acceptable, unbounded growth is not.
}

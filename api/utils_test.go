package api

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNextTimestampMonotonic(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastEventTimestamp, 0)
	})
	atomic.StoreInt64(&lastEventTimestamp, 0)

	prev := nextTimestamp()
	for i := 0; i < 100; i++ {
		ts := nextTimestamp()
		if ts <= prev {
			t.Fatalf("expected strictly increasing timestamps, got %d after %d", ts, prev)
		}
		prev = ts
	}
}

func TestNextTimestampAdvancesPastLast(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastEventTimestamp, 0)
	})

	base := time.Now().Add(time.Second).UnixNano()
	atomic.StoreInt64(&lastEventTimestamp, base)

	if ts := nextTimestamp(); ts != base+1 {
		t.Fatalf("expected %d, got %d", base+1, ts)
	}
}

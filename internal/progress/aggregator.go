package progress

import (
	"time"
)

// Counter is the read side of one segment's live byte counters.
type Counter interface {
	Expected() int64
	Received() int64
}

// SegmentSnapshot is one segment's counters at snapshot time.
type SegmentSnapshot struct {
	Index    int
	Expected int64
	Received int64
}

func (s SegmentSnapshot) Percent() float64 {
	return percent(s.Received, s.Expected)
}

// Snapshot is a weakly consistent view across all segments: each counter is
// read atomically but not all of them at the same instant.
type Snapshot struct {
	Expected int64
	Received int64
	Elapsed  time.Duration
	Segments []SegmentSnapshot
}

// Percent returns received/expected*100, or 0 before any size is known.
func (s Snapshot) Percent() float64 {
	return percent(s.Received, s.Expected)
}

// Throughput is the average rate in bytes per second since the job started.
func (s Snapshot) Throughput() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Received) / secs
}

// ETA estimates the remaining time. ok is false while throughput is zero,
// in which case the remaining time is unbounded.
func (s Snapshot) ETA() (eta time.Duration, ok bool) {
	speed := s.Throughput()
	if speed <= 0 {
		return 0, false
	}
	remaining := s.Expected - s.Received
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(float64(remaining) / speed * float64(time.Second)), true
}

// Aggregator sums the counters of every segment of a job.
type Aggregator struct {
	counters []Counter
	start    time.Time
	now      func() time.Time
}

func NewAggregator(counters []Counter, start time.Time) *Aggregator {
	return &Aggregator{counters: counters, start: start, now: time.Now}
}

func (a *Aggregator) Snapshot() Snapshot {
	snap := Snapshot{
		Elapsed:  a.now().Sub(a.start),
		Segments: make([]SegmentSnapshot, len(a.counters)),
	}
	for i, c := range a.counters {
		expected, received := c.Expected(), c.Received()
		snap.Segments[i] = SegmentSnapshot{Index: i, Expected: expected, Received: received}
		snap.Expected += expected
		snap.Received += received
	}
	return snap
}

func percent(received, expected int64) float64 {
	if expected <= 0 {
		return 0
	}
	return float64(received) / float64(expected) * 100
}

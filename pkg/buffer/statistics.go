package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks queue activity. All methods are safe for concurrent use.
type Statistics struct {
	pushes    atomic.Int64
	pops      atomic.Int64
	depth     atomic.Int64
	highWater atomic.Int64
	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) push(depth int64) {
	s.pushes.Add(1)
	s.depth.Store(depth)
	for {
		hw := s.highWater.Load()
		if depth <= hw || s.highWater.CompareAndSwap(hw, depth) {
			return
		}
	}
}

func (s *Statistics) pop(depth int64) {
	s.pops.Add(1)
	s.depth.Store(depth)
}

// Pushes returns the number of items ever queued.
func (s *Statistics) Pushes() int64 { return s.pushes.Load() }

// Pops returns the number of items ever removed.
func (s *Statistics) Pops() int64 { return s.pops.Load() }

// Depth returns the last observed queue length.
func (s *Statistics) Depth() int64 { return s.depth.Load() }

// HighWater returns the largest backlog the queue has held.
func (s *Statistics) HighWater() int64 { return s.highWater.Load() }

// Uptime returns how long the queue has existed.
func (s *Statistics) Uptime() time.Duration { return time.Since(s.startTime) }

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Pushes    int64         `json:"pushes"`
	Pops      int64         `json:"pops"`
	Depth     int64         `json:"depth"`
	HighWater int64         `json:"high_water"`
	Uptime    time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Pushes:    s.Pushes(),
		Pops:      s.Pops(),
		Depth:     s.Depth(),
		HighWater: s.HighWater(),
		Uptime:    s.Uptime(),
	}
}

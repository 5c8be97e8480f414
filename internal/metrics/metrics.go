package metrics

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Counter struct {
	value atomic.Uint64
}

func (c *Counter) Inc() {
	c.value.Add(1)
}

func (c *Counter) Add(n uint64) {
	c.value.Add(n)
}

func (c *Counter) Load() uint64 {
	return c.value.Load()
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// BatchStats counts candidate outcomes of a single job run.
type BatchStats struct {
	Candidates Counter
	Applied    Counter
	Skipped    Counter
	Failed     Counter
	timer      *Timer
}

func NewBatchStats() *BatchStats {
	return &BatchStats{timer: StartTimer()}
}

func (s *BatchStats) Duration() time.Duration {
	if s.timer == nil {
		return 0
	}
	return s.timer.Duration()
}

// Fields renders the counters for a summary log line.
func (s *BatchStats) Fields() []zap.Field {
	return []zap.Field{
		zap.Uint64("candidates", s.Candidates.Load()),
		zap.Uint64("applied", s.Applied.Load()),
		zap.Uint64("skipped", s.Skipped.Load()),
		zap.Uint64("failed", s.Failed.Load()),
		zap.Duration("duration", s.Duration()),
	}
}

type Snapshot struct {
	Candidates uint64 `json:"candidates"`
	Applied    uint64 `json:"applied"`
	Skipped    uint64 `json:"skipped"`
	Failed     uint64 `json:"failed"`
	DurationMS int64  `json:"durationMs"`
}

func (s *BatchStats) Snapshot() Snapshot {
	return Snapshot{
		Candidates: s.Candidates.Load(),
		Applied:    s.Applied.Load(),
		Skipped:    s.Skipped.Load(),
		Failed:     s.Failed.Load(),
		DurationMS: s.Duration().Milliseconds(),
	}
}

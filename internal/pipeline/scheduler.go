package pipeline

import (
	"sync"
	"time"
)

// DefaultTickInterval approximates a display refresh tick.
const DefaultTickInterval = time.Second / 60

// Clock tells the pipeline what time it is
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Scheduler runs the next tick. Only one tick is pending at a time.
type Scheduler interface {
	ScheduleNext(fn func())
	Cancel()
}

// TickScheduler schedules ticks on a fixed interval with time.AfterFunc
type TickScheduler struct {
	interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewTickScheduler creates a scheduler ticking every interval
func NewTickScheduler(interval time.Duration) *TickScheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &TickScheduler{interval: interval}
}

func (s *TickScheduler) ScheduleNext(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.interval, fn)
}

func (s *TickScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

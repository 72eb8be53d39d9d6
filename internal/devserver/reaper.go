package devserver

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultIdleTimeout closes sessions that stop sending anything.
	DefaultIdleTimeout = 2 * time.Minute
	defaultSweepPeriod = 30 * time.Second
)

// Reaper closes sessions whose client went silent without closing the socket
type Reaper struct {
	hub      *Hub
	idle     time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewReaper creates a new reaper. idle <= 0 selects DefaultIdleTimeout.
func NewReaper(hub *Hub, idle time.Duration, logger *zap.Logger) *Reaper {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	interval := defaultSweepPeriod
	if idle/2 < interval {
		interval = idle / 2
	}
	return &Reaper{
		hub:      hub,
		idle:     idle,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep
func (r *Reaper) Start() {
	go r.loop()
	r.logger.Info("Session reaper started", zap.Duration("idleTimeout", r.idle))
}

// Stop stops the sweep. Safe to call more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.logger.Info("Session reaper stopped")
	})
}

func (r *Reaper) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep closes idle sessions and returns how many it closed.
func (r *Reaper) sweep() int {
	stale := r.hub.idleSince(r.now().Add(-r.idle))
	for _, s := range stale {
		r.logger.Warn("Closing idle session",
			zap.String("sessionID", s.id),
			zap.Time("lastSeen", s.lastSeen()))
		s.conn.Close()
	}
	return len(stale)
}

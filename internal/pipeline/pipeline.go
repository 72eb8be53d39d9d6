package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/repositories"
	"github.com/pulih-app/coach/internal/protocol"
)

const (
	DefaultTargetFPS = 10
	DefaultWidth     = 640
	DefaultHeight    = 480

	minTargetFPS = 0.1
	maxTargetFPS = 30
)

// Gate reports whether frames may be sent right now
type Gate func() bool

// Sender hands encoded frame messages to the transport without waiting
type Sender interface {
	// SendFrame returns repositories.ErrFrameInFlight while the previous frame
	// has not been written yet.
	SendFrame(payload []byte) error
	FrameInFlight() bool
}

// Config holds configuration for the pipeline
type Config struct {
	TargetFPS float64
	Width     int
	Height    int
	Clock     Clock
	Scheduler Scheduler
}

// Stats counts what happened to each tick
type Stats struct {
	Sent int64
	// Dropped counts send opportunities lost to a busy transport or to
	// capture, encode or transport errors.
	Dropped int64
	// Skipped counts ticks where the gate was closed or the source had no picture yet.
	Skipped int64
	// Throttled counts ticks that arrived before the send interval elapsed.
	Throttled int64
}

// Pipeline samples the camera, encodes frames and streams them at a bounded rate
type Pipeline struct {
	source   repositories.VideoSource
	sender   Sender
	gate     Gate
	encoder  *Encoder
	clock    Clock
	sched    Scheduler
	interval time.Duration
	logger   *zap.Logger

	// stepMu is held for the whole of each tick so Stop can wait for one in progress.
	stepMu sync.Mutex

	mu        sync.Mutex
	running   bool
	gen       uint64
	stopWatch func() bool
	lastSent  time.Time
	hasSent  bool
	stats    Stats
}

// Validate checks the configuration, filling defaults for zero values
func (c *Config) Validate() error {
	if c.TargetFPS == 0 {
		c.TargetFPS = DefaultTargetFPS
	}
	if c.TargetFPS < minTargetFPS || c.TargetFPS > maxTargetFPS {
		return fmt.Errorf("invalid target FPS %.2f (must be %.1f-%.0f)", c.TargetFPS, minTargetFPS, float64(maxTargetFPS))
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("invalid output size %dx%d", c.Width, c.Height)
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Scheduler == nil {
		c.Scheduler = NewTickScheduler(DefaultTickInterval)
	}
	return nil
}

// New creates a pipeline reading from source and writing to sender while gate is open
func New(source repositories.VideoSource, sender Sender, gate Gate, config Config, logger *zap.Logger) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		source:   source,
		sender:   sender,
		gate:     gate,
		encoder:  NewEncoder(config.Width, config.Height),
		clock:    config.Clock,
		sched:    config.Scheduler,
		interval: time.Duration(float64(time.Second) / config.TargetFPS),
		logger:   logger,
	}, nil
}

// Start begins the tick loop, which also stops when ctx is done. Calling
// Start on a running pipeline does nothing.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.gen++
	gen := p.gen
	p.stopWatch = context.AfterFunc(ctx, p.Stop)
	p.mu.Unlock()

	p.logger.Info("Frame pipeline started", zap.Duration("interval", p.interval))

	p.sched.ScheduleNext(func() { p.tick(gen) })
}

// Stop halts the tick loop and waits for a tick in progress, so the source is
// not sampled once Stop returns. Safe to call without Start and more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopWatch := p.stopWatch
	p.stopWatch = nil
	p.mu.Unlock()

	stopWatch()
	p.sched.Cancel()

	// Ticks check running under stepMu, so every later tick sees it cleared.
	p.stepMu.Lock()
	p.stepMu.Unlock()

	stats := p.Stats()

	p.logger.Info("Frame pipeline stopped",
		zap.Int64("sent", stats.Sent),
		zap.Int64("dropped", stats.Dropped),
		zap.Int64("skipped", stats.Skipped))
}

// Running reports whether the tick loop is active
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns a snapshot of the counters
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) tick(gen uint64) {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()

	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.step()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && p.gen == gen {
		p.sched.ScheduleNext(func() { p.tick(gen) })
	}
}

// step performs at most one send. It runs only under stepMu, so the encoder
// is never used concurrently.
func (p *Pipeline) step() {
	if !p.gate() {
		p.count(func(s *Stats) { s.Skipped++ })
		return
	}

	if w, h := p.source.Dimensions(); w < 1 || h < 1 {
		p.count(func(s *Stats) { s.Skipped++ })
		return
	}

	now := p.clock.Now()
	p.mu.Lock()
	if p.hasSent && now.Sub(p.lastSent) < p.interval {
		p.stats.Throttled++
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// The previous frame has not left yet: skip this opportunity rather than
	// queue behind it.
	if p.sender.FrameInFlight() {
		p.mu.Lock()
		p.lastSent = now
		p.hasSent = true
		p.stats.Dropped++
		p.mu.Unlock()
		return
	}

	frame, err := p.source.Frame()
	if err != nil {
		p.logger.Warn("Failed to sample frame", zap.Error(err))
		p.count(func(s *Stats) { s.Dropped++ })
		return
	}

	jpegData, err := p.encoder.Encode(frame)
	if err != nil {
		p.logger.Warn("Failed to encode frame", zap.Error(err))
		p.count(func(s *Stats) { s.Dropped++ })
		return
	}

	payload, err := protocol.Encode(protocol.NewFrame(jpegData))
	if err != nil {
		p.logger.Error("Failed to marshal frame message", zap.Error(err))
		p.count(func(s *Stats) { s.Dropped++ })
		return
	}

	// The interval is measured from the start of a send so slow encodes
	// never cause bursts.
	p.mu.Lock()
	p.lastSent = now
	p.hasSent = true
	p.mu.Unlock()

	// The gate may have closed while encoding.
	if !p.gate() {
		p.count(func(s *Stats) { s.Skipped++ })
		return
	}

	if err := p.sender.SendFrame(payload); err != nil {
		if !errors.Is(err, repositories.ErrFrameInFlight) {
			p.logger.Debug("Failed to send frame", zap.Error(err))
		}
		p.count(func(s *Stats) { s.Dropped++ })
		return
	}

	p.count(func(s *Stats) { s.Sent++ })
}

func (p *Pipeline) count(f func(*Stats)) {
	p.mu.Lock()
	f(&p.stats)
	p.mu.Unlock()
}

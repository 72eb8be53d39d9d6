package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/pulih-app/coach/domain/repositories"
	"github.com/pulih-app/coach/internal/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// manualScheduler holds the pending tick until the test fires it
type manualScheduler struct {
	mu        sync.Mutex
	next      func()
	cancelled int
}

func (s *manualScheduler) ScheduleNext(fn func()) {
	s.mu.Lock()
	s.next = fn
	s.mu.Unlock()
}

func (s *manualScheduler) Cancel() {
	s.mu.Lock()
	s.next = nil
	s.cancelled++
	s.mu.Unlock()
}

func (s *manualScheduler) fire() bool {
	s.mu.Lock()
	fn := s.next
	s.next = nil
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

type fakeSource struct {
	w, h    int
	samples int
	err     error
}

func (s *fakeSource) Dimensions() (int, int) { return s.w, s.h }

func (s *fakeSource) Frame() (image.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.samples++
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	img.Set(0, 0, color.RGBA{R: uint8(s.samples), A: 255})
	return img, nil
}

func (s *fakeSource) Stop() {}

type sentFrame struct {
	at      time.Time
	payload []byte
}

type recordingSender struct {
	clock *fakeClock
	mu    sync.Mutex
	sent  []sentFrame
	err   error
	busy  atomic.Bool
}

func (r *recordingSender) FrameInFlight() bool { return r.busy.Load() }

func (r *recordingSender) SendFrame(payload []byte) error {
	if r.busy.Load() {
		return repositories.ErrFrameInFlight
	}
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentFrame{at: r.clock.Now(), payload: payload})
	return nil
}

type fixture struct {
	pipeline *Pipeline
	clock    *fakeClock
	sched    *manualScheduler
	source   *fakeSource
	sender   *recordingSender
	open     atomic.Bool
}

func setupPipeline(t *testing.T, fps float64) *fixture {
	f := &fixture{
		clock:  &fakeClock{now: time.Unix(1700000000, 0)},
		sched:  &manualScheduler{},
		source: &fakeSource{w: 1280, h: 720},
	}
	f.sender = &recordingSender{clock: f.clock}
	f.open.Store(true)

	p, err := New(f.source, f.sender, f.open.Load, Config{
		TargetFPS: fps,
		Clock:     f.clock,
		Scheduler: f.sched,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.pipeline = p
	return f
}

// run fires ticks every step for the given duration
func (f *fixture) run(d, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		f.sched.fire()
		f.clock.Advance(step)
	}
}

func TestPipeline_RateBound(t *testing.T) {
	tests := []struct {
		name string
		fps  float64
		step time.Duration
	}{
		{"10fps at 60Hz ticks", 10, time.Second / 60},
		{"10fps at 10ms ticks", 10, 10 * time.Millisecond},
		{"5fps at 1ms ticks", 5, time.Millisecond},
		{"30fps at 60Hz ticks", 30, time.Second / 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupPipeline(t, tt.fps)
			f.pipeline.Start(context.Background())
			f.run(3*time.Second, tt.step)

			sent := f.sender.sent
			if len(sent) == 0 {
				t.Fatal("Expected frames to be sent")
			}

			limit := int(tt.fps) + 1
			for i := range sent {
				window := 0
				for j := i; j < len(sent) && sent[j].at.Sub(sent[i].at) < time.Second; j++ {
					window++
				}
				if window > limit {
					t.Fatalf("Sent %d frames in one second, limit %d", window, limit)
				}
			}

			// Discrete ticks lose up to one tick per interval, never more
			if min := int(tt.fps * 3 / 2); len(sent) < min {
				t.Errorf("Expected at least %d frames in 3s, got %d", min, len(sent))
			}
		})
	}
}

func TestPipeline_NoSendsWhileGateClosed(t *testing.T) {
	f := setupPipeline(t, 10)
	f.open.Store(false)

	f.pipeline.Start(context.Background())
	f.run(time.Second, 10*time.Millisecond)

	if len(f.sender.sent) != 0 {
		t.Errorf("Expected no frames while gate closed, got %d", len(f.sender.sent))
	}
	if f.source.samples != 0 {
		t.Errorf("Expected no camera samples while gate closed, got %d", f.source.samples)
	}
	if stats := f.pipeline.Stats(); stats.Skipped == 0 {
		t.Error("Expected skipped ticks to be counted")
	}

	// Opening the gate resumes sending without restarting the loop
	f.open.Store(true)
	f.run(time.Second, 10*time.Millisecond)
	if len(f.sender.sent) == 0 {
		t.Error("Expected frames once gate opened")
	}
}

func TestPipeline_ZeroDimensionsSkipped(t *testing.T) {
	f := setupPipeline(t, 10)
	f.source.w, f.source.h = 0, 0

	f.pipeline.Start(context.Background())
	f.run(500*time.Millisecond, 10*time.Millisecond)

	if len(f.sender.sent) != 0 {
		t.Errorf("Expected no frames before the source has a picture, got %d", len(f.sender.sent))
	}
}

func TestPipeline_FrameMessage(t *testing.T) {
	f := setupPipeline(t, 10)
	f.pipeline.Start(context.Background())
	f.sched.fire()

	if len(f.sender.sent) != 1 {
		t.Fatalf("Expected one frame, got %d", len(f.sender.sent))
	}

	msg, err := protocol.NewDecoder().DecodeClientMessage(f.sender.sent[0].payload)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	frame, ok := msg.(*protocol.FrameMessage)
	if !ok {
		t.Fatalf("Expected *FrameMessage, got %T", msg)
	}

	data, err := frame.FrameBytes()
	if err != nil {
		t.Fatalf("FrameBytes() error = %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(f.sender.sent[0].payload, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if raw["type"] != "frame" {
		t.Errorf("Expected type frame, got %v", raw["type"])
	}

	img, err := decodeJPEG(data)
	if err != nil {
		t.Fatalf("Frame is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != DefaultWidth || b.Dy() != DefaultHeight {
		t.Errorf("Expected %dx%d output, got %dx%d", DefaultWidth, DefaultHeight, b.Dx(), b.Dy())
	}
}

func TestPipeline_ResamplesEachSend(t *testing.T) {
	f := setupPipeline(t, 10)
	f.pipeline.Start(context.Background())
	f.run(time.Second, 10*time.Millisecond)

	if f.source.samples != len(f.sender.sent) {
		t.Errorf("Expected one fresh sample per send, got %d samples for %d sends", f.source.samples, len(f.sender.sent))
	}
}

func TestPipeline_SendErrorsAreDropped(t *testing.T) {
	f := setupPipeline(t, 10)
	f.sender.err = errors.New("connection closed")

	f.pipeline.Start(context.Background())
	f.run(time.Second, 10*time.Millisecond)

	stats := f.pipeline.Stats()
	if stats.Sent != 0 {
		t.Errorf("Expected no successful sends, got %d", stats.Sent)
	}
	if stats.Dropped == 0 {
		t.Error("Expected failed sends to count as drops")
	}
	if !f.pipeline.Running() {
		t.Error("Transport errors must not stop the loop")
	}
}

func TestPipeline_BusyTransportDropsFrames(t *testing.T) {
	f := setupPipeline(t, 10)
	f.sender.busy.Store(true)

	f.pipeline.Start(context.Background())
	f.run(time.Second, 10*time.Millisecond)

	stats := f.pipeline.Stats()
	if stats.Sent != 0 || len(f.sender.sent) != 0 {
		t.Errorf("Expected nothing sent while the previous frame is in flight, got %d", stats.Sent)
	}
	// One missed opportunity per interval, not one per tick.
	if stats.Dropped < 9 || stats.Dropped > 11 {
		t.Errorf("Expected about 10 drops, got %d", stats.Dropped)
	}
	if f.source.samples != 0 {
		t.Errorf("Expected no sampling while busy, got %d samples", f.source.samples)
	}

	f.sender.busy.Store(false)
	f.run(time.Second, 10*time.Millisecond)
	if n := len(f.sender.sent); n < 9 || n > 11 {
		t.Errorf("Expected sending to recover at the target rate, got %d frames", n)
	}
}

// blockingSource parks Frame until released
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSource) Dimensions() (int, int) { return 64, 48 }

func (s *blockingSource) Frame() (image.Image, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (s *blockingSource) Stop() {}

func TestPipeline_StopWaitsForTickInProgress(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	sched := &manualScheduler{}
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	sender := &recordingSender{clock: clock}

	p, err := New(source, sender, func() bool { return true }, Config{
		TargetFPS: 10,
		Clock:     clock,
		Scheduler: sched,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p.Start(context.Background())
	go sched.fire()
	<-source.entered

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was sampling the source")
	case <-time.After(50 * time.Millisecond):
	}

	close(source.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}

	if sched.fire() {
		t.Error("Expected no tick scheduled after Stop")
	}
}

func TestPipeline_StopsWithContext(t *testing.T) {
	f := setupPipeline(t, 10)
	ctx, cancel := context.WithCancel(context.Background())

	f.pipeline.Start(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for f.pipeline.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.pipeline.Running() {
		t.Error("Expected the pipeline to stop with its context")
	}
}

func TestPipeline_StartStopIdempotent(t *testing.T) {
	f := setupPipeline(t, 10)

	// Stop before Start is safe
	f.pipeline.Stop()

	f.pipeline.Start(context.Background())
	f.pipeline.Start(context.Background())
	f.run(time.Second, 10*time.Millisecond)
	sent := len(f.sender.sent)
	if sent > 11 {
		t.Errorf("Double Start must not double the rate, got %d frames", sent)
	}

	f.pipeline.Stop()
	f.pipeline.Stop()

	if f.pipeline.Running() {
		t.Error("Expected pipeline to be stopped")
	}
	if f.sched.fire() {
		t.Error("Expected no tick scheduled after Stop")
	}
	f.run(time.Second, 10*time.Millisecond)
	if len(f.sender.sent) != sent {
		t.Errorf("Expected no frames after Stop, got %d more", len(f.sender.sent)-sent)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"fps too high", Config{TargetFPS: 60}, true},
		{"fps too low", Config{TargetFPS: 0.01}, true},
		{"negative size", Config{Width: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

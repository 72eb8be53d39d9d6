package audio

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/pulih-app/coach/domain/repositories"
)

// fakePlayer records every Play call and lets the test finish clips by hand
type fakePlayer struct {
	mu         sync.Mutex
	started    []string
	done       []func(error)
	stopped    []bool
	active     int
	maxActive  int
	failOnPlay map[string]bool
}

type fakePlayback struct {
	player *fakePlayer
	index  int
}

func (p *fakePlayback) Stop() {
	p.player.mu.Lock()
	defer p.player.mu.Unlock()
	if !p.player.stopped[p.index] && p.player.done[p.index] != nil {
		p.player.active--
	}
	p.player.stopped[p.index] = true
	p.player.done[p.index] = nil
}

func (p *fakePlayer) Play(clip []byte, done func(err error)) (repositories.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOnPlay[string(clip)] {
		return nil, errors.New("unsupported clip")
	}

	p.started = append(p.started, string(clip))
	p.done = append(p.done, done)
	p.stopped = append(p.stopped, false)
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	return &fakePlayback{player: p, index: len(p.started) - 1}, nil
}

// finish completes clip i with err, as the platform would on ended/error
func (p *fakePlayer) finish(i int, err error) {
	p.mu.Lock()
	done := p.done[i]
	p.done[i] = nil
	if done != nil {
		p.active--
	}
	p.mu.Unlock()

	if done != nil {
		done(err)
	}
}

func (p *fakePlayer) startedClips() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

// manualScheduler holds gap timers until the test fires them
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (s *manualScheduler) schedule(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{f: f}
	s.pending = append(s.pending, t)
	return t
}

func (s *manualScheduler) fireAll() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	fired := 0
	for _, t := range pending {
		if !t.stopped {
			t.f()
			fired++
		}
	}
	return fired
}

func setupQueue(t *testing.T) (*Queue, *fakePlayer, *manualScheduler) {
	player := &fakePlayer{failOnPlay: map[string]bool{}}
	sched := &manualScheduler{}
	q := NewQueue(player, Config{Schedule: sched.schedule}, zaptest.NewLogger(t))
	return q, player, sched
}

func TestQueue_PlaysInEnqueueOrder(t *testing.T) {
	q, player, sched := setupQueue(t)

	for _, clip := range []string{"a", "b", "c"} {
		if err := q.Enqueue([]byte(clip)); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", clip, err)
		}
	}

	if got := player.startedClips(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("Expected only clip a to start, got %v", got)
	}
	if q.Len() != 2 {
		t.Errorf("Expected 2 pending clips, got %d", q.Len())
	}

	for i := 0; i < 3; i++ {
		player.finish(i, nil)

		// Nothing starts until the gap elapses
		if got := player.startedClips(); len(got) != i+1 {
			t.Fatalf("Clip started before the gap elapsed: %v", got)
		}
		sched.fireAll()
	}

	got := player.startedClips()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if player.maxActive != 1 {
		t.Errorf("Expected at most one clip playing at once, got %d", player.maxActive)
	}
	if !q.Idle() {
		t.Error("Queue should be idle after all clips finished")
	}
}

func TestQueue_ErrorAdvances(t *testing.T) {
	q, player, sched := setupQueue(t)

	q.Enqueue([]byte("broken"))
	q.Enqueue([]byte("fine"))

	player.finish(0, errors.New("decode error"))
	if q.Playing() {
		t.Error("Failed clip must not count as playing")
	}
	sched.fireAll()

	got := player.startedClips()
	if len(got) != 2 || got[1] != "fine" {
		t.Errorf("Expected queue to advance past the failed clip, got %v", got)
	}
}

func TestQueue_PlayRejectedAdvances(t *testing.T) {
	q, player, sched := setupQueue(t)
	player.failOnPlay["bad"] = true

	q.Enqueue([]byte("bad"))
	q.Enqueue([]byte("good"))

	if q.Playing() {
		t.Error("Rejected clip must not count as playing")
	}

	sched.fireAll()

	got := player.startedClips()
	if len(got) != 1 || got[0] != "good" {
		t.Errorf("Expected good clip to play after the rejected one, got %v", got)
	}
}

func TestQueue_StopAllDiscardsAndHalts(t *testing.T) {
	q, player, sched := setupQueue(t)

	var started []string
	q.onStart = func(clip []byte) { started = append(started, string(clip)) }

	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	q.Enqueue([]byte("c"))

	q.StopAll()

	if q.Len() != 0 {
		t.Errorf("Expected empty queue after StopAll, got %d", q.Len())
	}
	if q.Playing() {
		t.Error("Expected nothing playing after StopAll")
	}
	if !player.stopped[0] {
		t.Error("Expected in-flight clip to be halted")
	}

	// A late completion of the halted clip must not advance the queue
	player.finish(0, nil)
	if n := sched.fireAll(); n != 0 {
		t.Errorf("Expected no gap timers after StopAll, fired %d", n)
	}

	if len(player.startedClips()) != 1 {
		t.Errorf("Discarded clips must never play, got %v", player.startedClips())
	}
	if len(started) != 1 {
		t.Errorf("Expected a single start callback, got %v", started)
	}
}

func TestQueue_StopAllDuringGap(t *testing.T) {
	q, player, sched := setupQueue(t)

	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	player.finish(0, nil)

	q.StopAll()

	if n := sched.fireAll(); n != 0 {
		t.Errorf("Expected the pending gap timer to be cancelled, fired %d", n)
	}
	if len(player.startedClips()) != 1 {
		t.Errorf("Expected clip b to be discarded, got %v", player.startedClips())
	}

	// The queue is usable again after a flush
	q.Enqueue([]byte("c"))
	got := player.startedClips()
	if len(got) != 2 || got[1] != "c" {
		t.Errorf("Expected clip c to play after flush, got %v", got)
	}
}

func TestQueue_EnqueueBase64(t *testing.T) {
	q, player, _ := setupQueue(t)

	encoded := base64.StdEncoding.EncodeToString([]byte("RIFF"))
	if err := q.EnqueueBase64(encoded); err != nil {
		t.Fatalf("EnqueueBase64() error = %v", err)
	}

	if err := q.EnqueueBase64("data:audio/wav;base64," + encoded); err != nil {
		t.Fatalf("EnqueueBase64() with data URL error = %v", err)
	}

	if err := q.EnqueueBase64("not base64!"); err == nil {
		t.Error("Expected decode error")
	}

	if err := q.EnqueueBase64(""); !errors.Is(err, ErrEmptyClip) {
		t.Errorf("Expected ErrEmptyClip, got %v", err)
	}

	if got := player.startedClips(); len(got) != 1 || got[0] != "RIFF" {
		t.Errorf("Expected decoded clip to play, got %v", got)
	}
	if q.Len() != 1 {
		t.Errorf("Expected data URL clip to be pending, got %d", q.Len())
	}
}

func TestQueue_RealTimerGap(t *testing.T) {
	player := &fakePlayer{failOnPlay: map[string]bool{}}
	q := NewQueue(player, Config{Gap: 10 * time.Millisecond}, zaptest.NewLogger(t))

	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	player.finish(0, nil)

	deadline := time.Now().Add(time.Second)
	for len(player.startedClips()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got := player.startedClips(); len(got) != 2 {
		t.Errorf("Expected second clip after the gap, got %v", got)
	}
}

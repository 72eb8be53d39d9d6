package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/repositories"
)

// DefaultGap is the pause inserted between consecutive clips.
const DefaultGap = 300 * time.Millisecond

// ErrEmptyClip is returned when a clip carries no audio bytes.
var ErrEmptyClip = errors.New("empty audio clip")

// Timer is a pending delayed call
type Timer interface {
	Stop() bool
}

// ScheduleFunc runs f after d. time.AfterFunc is the default.
type ScheduleFunc func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config holds configuration for the queue
type Config struct {
	// Gap between the end of one clip and the start of the next.
	Gap time.Duration
	// Schedule overrides the timer primitive, used by tests.
	Schedule ScheduleFunc
	// OnStart is called, outside the queue lock, right before each clip plays.
	OnStart func(clip []byte)
}

// Queue plays feedback clips one at a time in arrival order
type Queue struct {
	player   repositories.AudioPlayer
	gap      time.Duration
	schedule ScheduleFunc
	onStart  func(clip []byte)
	logger   *zap.Logger

	mu      sync.Mutex
	pending [][]byte
	playing bool
	waiting bool
	current repositories.Playback
	timer   Timer

	// epoch changes on StopAll and invalidates pending gap timers.
	epoch uint64
	// playID identifies the in-flight clip so stale completions are ignored.
	playID uint64
	gapSeq uint64
}

// NewQueue creates a new audio feedback queue
func NewQueue(player repositories.AudioPlayer, config Config, logger *zap.Logger) *Queue {
	gap := config.Gap
	if gap <= 0 {
		gap = DefaultGap
	}

	schedule := config.Schedule
	if schedule == nil {
		schedule = afterFunc
	}

	return &Queue{
		player:   player,
		gap:      gap,
		schedule: schedule,
		onStart:  config.OnStart,
		logger:   logger,
	}
}

// Enqueue appends a clip and starts playback if the queue is idle
func (q *Queue) Enqueue(clip []byte) error {
	if len(clip) == 0 {
		return ErrEmptyClip
	}

	q.mu.Lock()
	q.pending = append(q.pending, clip)
	depth := len(q.pending)
	q.mu.Unlock()

	q.logger.Debug("Audio clip queued", zap.Int("size", len(clip)), zap.Int("depth", depth))

	q.advance()
	return nil
}

// EnqueueBase64 decodes a base64 clip, with or without a data URL prefix, and enqueues it
func (q *Queue) EnqueueBase64(encoded string) error {
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}

	clip, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		q.logger.Warn("Failed to decode audio clip", zap.Error(err))
		return fmt.Errorf("failed to decode audio clip: %w", err)
	}

	return q.Enqueue(clip)
}

// StopAll discards pending clips and halts the in-flight one without
// firing its completion.
func (q *Queue) StopAll() {
	q.mu.Lock()
	q.epoch++
	q.playID++
	discarded := len(q.pending)
	q.pending = nil
	q.playing = false
	q.waiting = false
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	current := q.current
	q.current = nil
	q.mu.Unlock()

	if current != nil {
		current.Stop()
	}

	if discarded > 0 || current != nil {
		q.logger.Info("Audio queue flushed",
			zap.Int("discarded", discarded),
			zap.Bool("interrupted", current != nil))
	}
}

// Len returns the number of clips waiting to play
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Playing reports whether a clip is currently playing
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Idle reports whether nothing is playing, waiting or pending
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.playing && !q.waiting && len(q.pending) == 0
}

func (q *Queue) advance() {
	q.mu.Lock()
	if q.playing || q.waiting || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}

	clip := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.playing = true
	q.playID++
	id := q.playID
	q.mu.Unlock()

	if q.onStart != nil {
		q.onStart(clip)
	}

	playback, err := q.player.Play(clip, func(err error) {
		q.finished(id, err)
	})
	if err != nil {
		q.finished(id, err)
		return
	}

	q.mu.Lock()
	if q.playing && q.playID == id {
		q.current = playback
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	// Completed synchronously or flushed while starting.
	playback.Stop()
}

func (q *Queue) finished(id uint64, err error) {
	q.mu.Lock()
	if !q.playing || q.playID != id {
		q.mu.Unlock()
		return
	}

	q.playing = false
	q.current = nil
	q.waiting = true
	q.gapSeq++
	seq := q.gapSeq
	epoch := q.epoch
	q.mu.Unlock()

	timer := q.schedule(q.gap, func() {
		q.afterGap(epoch)
	})

	q.mu.Lock()
	if q.waiting && q.gapSeq == seq {
		q.timer = timer
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn("Audio clip playback failed, advancing", zap.Error(err))
	}
}

func (q *Queue) afterGap(epoch uint64) {
	q.mu.Lock()
	if q.epoch != epoch {
		q.mu.Unlock()
		return
	}
	q.waiting = false
	q.timer = nil
	q.mu.Unlock()

	q.advance()
}

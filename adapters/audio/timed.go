package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/repositories"
)

// Bit rate assumed for clips without a WAV header.
const assumedMP3BitRate = 128_000

// TimedPlayer is a headless AudioPlayer. It holds each clip for its
// playback duration and optionally writes clips to disk.
type TimedPlayer struct {
	saveDir string
	logger  *zap.Logger
	seq     atomic.Uint64

	// afterFunc is time.AfterFunc outside tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

var _ repositories.AudioPlayer = (*TimedPlayer)(nil)

// NewTimedPlayer creates a player. An empty saveDir disables writing clips.
func NewTimedPlayer(saveDir string, logger *zap.Logger) *TimedPlayer {
	return &TimedPlayer{saveDir: saveDir, logger: logger, afterFunc: time.AfterFunc}
}

// Play implements repositories.AudioPlayer
func (p *TimedPlayer) Play(clip []byte, done func(err error)) (repositories.Playback, error) {
	if len(clip) == 0 {
		return nil, fmt.Errorf("cannot play empty clip")
	}

	n := p.seq.Add(1)
	duration, format := ClipDuration(clip)

	if p.saveDir != "" {
		path := filepath.Join(p.saveDir, fmt.Sprintf("feedback_%04d.%s", n, format))
		if err := os.WriteFile(path, clip, 0o644); err != nil {
			p.logger.Warn("Failed to save feedback clip", zap.String("path", path), zap.Error(err))
		}
	}

	p.logger.Info("Playing feedback clip",
		zap.Uint64("clip", n),
		zap.String("format", format),
		zap.Duration("duration", duration))

	pb := &timedPlayback{}
	pb.timer = p.afterFunc(duration, func() {
		if pb.finish() {
			done(nil)
		}
	})
	return pb, nil
}

type timedPlayback struct {
	mu    sync.Mutex
	timer *time.Timer
	ended bool
}

// finish reports whether the caller is the first to end the playback.
func (pb *timedPlayback) finish() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.ended {
		return false
	}
	pb.ended = true
	return true
}

// Stop ends playback without invoking the completion callback.
func (pb *timedPlayback) Stop() {
	if pb.finish() {
		pb.timer.Stop()
	}
}

// ClipDuration estimates a clip's playback length and reports its container
// format, "wav" or "mp3".
func ClipDuration(clip []byte) (time.Duration, string) {
	if d, ok := wavDuration(clip); ok {
		return d, "wav"
	}
	seconds := float64(len(clip)*8) / assumedMP3BitRate
	return time.Duration(seconds * float64(time.Second)), "mp3"
}

func wavDuration(clip []byte) (time.Duration, bool) {
	if len(clip) < 44 || !bytes.Equal(clip[0:4], []byte("RIFF")) || !bytes.Equal(clip[8:12], []byte("WAVE")) {
		return 0, false
	}

	var byteRate uint32
	for off := 12; off+8 <= len(clip); {
		id := string(clip[off : off+4])
		body := off + 8
		// Compared before converting so a huge size cannot wrap int on 32-bit targets.
		declared := binary.LittleEndian.Uint32(clip[off+4 : off+8])
		oversized := uint64(declared) > uint64(len(clip)-body)
		size := len(clip) - body
		if !oversized {
			size = int(declared)
		}

		switch id {
		case "fmt ":
			if body+12 > len(clip) {
				return 0, false
			}
			byteRate = binary.LittleEndian.Uint32(clip[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, false
			}
			// Streams written before their length is known carry a bogus size.
			if size == 0 {
				size = len(clip) - body
			}
			return time.Duration(float64(size) / float64(byteRate) * float64(time.Second)), true
		}

		if oversized {
			return 0, false
		}
		off = body + size + size%2
	}
	return 0, false
}

package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/pulih-app/coach/domain/repositories"
)

var (
	// ErrNoFrames is returned when the directory holds no readable images.
	ErrNoFrames = errors.New("no frames found")
	// ErrStopped is returned by Frame after the source was stopped.
	ErrStopped = errors.New("video source stopped")
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// DirectoryCamera replays a directory of still images as a video feed,
// in file name order, looping at the end.
type DirectoryCamera struct {
	dir    string
	logger *zap.Logger
}

var _ repositories.Camera = (*DirectoryCamera)(nil)

// NewDirectoryCamera creates a camera reading frames from dir
func NewDirectoryCamera(dir string, logger *zap.Logger) *DirectoryCamera {
	return &DirectoryCamera{dir: dir, logger: logger}
}

// Acquire implements repositories.Camera
func (c *DirectoryCamera) Acquire(ctx context.Context) (repositories.VideoSource, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(c.dir, entry.Name()))
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, c.dir)
	}

	src := &directorySource{
		frames: make([]image.Image, 0, len(paths)),
		logger: c.logger,
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeFile(path)
		if err != nil {
			c.logger.Warn("Skipping unreadable frame", zap.String("path", path), zap.Error(err))
			continue
		}
		src.frames = append(src.frames, img)
	}
	if len(src.frames) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, c.dir)
	}

	b := src.frames[0].Bounds()
	src.width, src.height = b.Dx(), b.Dy()

	c.logger.Info("Camera acquired",
		zap.String("dir", c.dir),
		zap.Int("frames", len(src.frames)),
		zap.Int("width", src.width),
		zap.Int("height", src.height))
	return src, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

type directorySource struct {
	frames        []image.Image
	width, height int
	logger        *zap.Logger

	mu      sync.Mutex
	next    int
	stopped bool
}

func (s *directorySource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, 0
	}
	return s.width, s.height
}

func (s *directorySource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	img := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return img, nil
}

func (s *directorySource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.logger.Info("Camera released")
}

package coach

import (
	"sync"

	"github.com/pulih-app/coach/domain/entities"
)

// Drawer renders skeleton updates
type Drawer interface {
	DrawSkeleton(pose entities.Pose, colorHint string)
	Clear()
}

type drawRequest struct {
	pose  entities.Pose
	color string
}

// drawSlot hands the newest pose to a single draw goroutine. A pose that
// arrives while the previous one is still pending replaces it.
type drawSlot struct {
	drawer Drawer

	mu      sync.Mutex
	cond    *sync.Cond
	pending *drawRequest
	closed  bool
	drops   uint64

	done chan struct{}
}

func newDrawSlot(drawer Drawer) *drawSlot {
	s := &drawSlot{
		drawer: drawer,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *drawSlot) publish(pose entities.Pose, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.pending != nil {
		s.drops++
	}
	s.pending = &drawRequest{pose: pose, color: color}
	s.cond.Signal()
}

func (s *drawSlot) loop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.pending == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		req := s.pending
		s.pending = nil
		s.mu.Unlock()

		s.drawer.DrawSkeleton(req.pose, req.color)
	}
}

// close discards any pending pose, waits for an in-progress draw and clears
// the overlay, so nothing is drawn after close returns.
func (s *drawSlot) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
	s.drawer.Clear()
}

func (s *drawSlot) dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

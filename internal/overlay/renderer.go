package overlay

import (
	"image/color"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
)

const (
	// DefaultSmoothing is the weight of a new sample in the moving average.
	DefaultSmoothing = 0.25

	// smoothingVisibility is the minimum previous confidence a landmark needs
	// to be blended with its history.
	smoothingVisibility = 0.3

	defaultLineWidth       = 3
	defaultPointRadius     = 5
	defaultHighlightRadius = 8
	glowScale              = 2.5
)

var (
	defaultSkeletonColor = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
	defaultAccentColor   = color.RGBA{R: 0xf4, G: 0x72, B: 0xb6, A: 0xff}
	outlineColor         = color.White
)

// Options configures the renderer
type Options struct {
	// Smoothing is the EMA factor in (0,1). Zero selects DefaultSmoothing.
	Smoothing float64
	// Highlight lists landmarks drawn larger in the accent color.
	Highlight []int

	SkeletonColor color.Color
	AccentColor   color.Color

	LineWidth       float64
	PointRadius     float64
	HighlightRadius float64
}

// Renderer draws a temporally smoothed skeleton onto a canvas
type Renderer struct {
	canvas    repositories.Canvas
	alpha     float64
	highlight map[int]bool
	skeleton  color.Color
	accent    color.Color
	lineWidth float64
	radius    float64
	hiRadius  float64
	logger    *zap.Logger

	mu       sync.Mutex
	smoothed entities.Pose
}

// NewRenderer creates a renderer bound to a canvas
func NewRenderer(canvas repositories.Canvas, opts Options, logger *zap.Logger) *Renderer {
	alpha := opts.Smoothing
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultSmoothing
	}

	r := &Renderer{
		canvas:    canvas,
		alpha:     alpha,
		highlight: make(map[int]bool, len(opts.Highlight)),
		skeleton:  opts.SkeletonColor,
		accent:    opts.AccentColor,
		lineWidth: opts.LineWidth,
		radius:    opts.PointRadius,
		hiRadius:  opts.HighlightRadius,
		logger:    logger,
	}
	for _, idx := range opts.Highlight {
		r.highlight[idx] = true
	}
	if r.skeleton == nil {
		r.skeleton = defaultSkeletonColor
	}
	if r.accent == nil {
		r.accent = defaultAccentColor
	}
	if r.lineWidth <= 0 {
		r.lineWidth = defaultLineWidth
	}
	if r.radius <= 0 {
		r.radius = defaultPointRadius
	}
	if r.hiRadius <= 0 {
		r.hiRadius = defaultHighlightRadius
	}
	return r
}

// DrawSkeleton smooths pose against the retained state and redraws the canvas.
// colorHint is the server's skeleton color, empty for the default.
func (r *Renderer) DrawSkeleton(pose entities.Pose, colorHint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.smoothed = r.smooth(pose)
	r.draw(r.smoothed, ParseColor(colorHint, r.skeleton))
}

// Clear wipes the canvas and forgets the smoothing history
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.smoothed = nil
	r.canvas.Clear()
	r.logger.Debug("Overlay cleared")
}

// Smoothed returns a copy of the retained smoothed pose
func (r *Renderer) Smoothed() entities.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.smoothed.Clone()
}

// smooth blends each landmark with its previous smoothed value. Landmarks
// without a usable previous value pass through unchanged.
func (r *Renderer) smooth(pose entities.Pose) entities.Pose {
	out := make(entities.Pose, len(pose))
	for idx, kp := range pose {
		prev, ok := r.smoothed[idx]
		if ok && prev.Visibility > smoothingVisibility {
			kp.X = kp.X*r.alpha + prev.X*(1-r.alpha)
			kp.Y = kp.Y*r.alpha + prev.Y*(1-r.alpha)
		}
		out[idx] = kp
	}
	return out
}

func (r *Renderer) draw(pose entities.Pose, skeleton color.Color) {
	w, h := r.canvas.Size()
	fw, fh := float64(w), float64(h)

	r.canvas.Clear()

	for _, conn := range Connections {
		a, okA := pose[conn.From]
		b, okB := pose[conn.To]
		if !okA || !okB || !a.Visible() || !b.Visible() {
			continue
		}
		r.canvas.Line(a.X*fw, a.Y*fh, b.X*fw, b.Y*fh, skeleton, r.lineWidth)
	}

	indices := make([]int, 0, len(pose))
	for idx := range pose {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		kp := pose[idx]
		if !kp.Visible() {
			continue
		}
		x, y := kp.X*fw, kp.Y*fh

		if r.highlight[idx] {
			r.canvas.Glow(x, y, r.hiRadius*glowScale, r.accent)
			r.canvas.Circle(x, y, r.hiRadius, r.accent, outlineColor, 2)
			continue
		}
		r.canvas.Circle(x, y, r.radius, skeleton, outlineColor, 1.5)
	}
}

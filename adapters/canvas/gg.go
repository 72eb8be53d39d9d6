package canvas

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/pulih-app/coach/domain/repositories"
)

// Raster is an off-screen overlay canvas backed by gg. It is transparent
// wherever nothing was drawn.
type Raster struct {
	mu sync.Mutex
	dc *gg.Context
}

var _ repositories.Canvas = (*Raster)(nil)

// NewRaster creates a transparent canvas of the given size
func NewRaster(width, height int) (*Raster, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("canvas size must be positive, got %dx%d", width, height)
	}
	return &Raster{dc: gg.NewContext(width, height)}, nil
}

// Size implements repositories.Canvas
func (r *Raster) Size() (int, int) {
	return r.dc.Width(), r.dc.Height()
}

// Clear implements repositories.Canvas
func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dc.SetRGBA(0, 0, 0, 0)
	r.dc.Clear()
}

// Line implements repositories.Canvas
func (r *Raster) Line(x1, y1, x2, y2 float64, c color.Color, width float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dc.SetColor(c)
	r.dc.SetLineWidth(width)
	r.dc.SetLineCapRound()
	r.dc.DrawLine(x1, y1, x2, y2)
	r.dc.Stroke()
}

// Circle implements repositories.Canvas
func (r *Raster) Circle(x, y, radius float64, fill, stroke color.Color, strokeWidth float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dc.DrawCircle(x, y, radius)
	r.dc.SetColor(fill)
	if stroke == nil || strokeWidth <= 0 {
		r.dc.Fill()
		return
	}
	r.dc.FillPreserve()
	r.dc.SetColor(stroke)
	r.dc.SetLineWidth(strokeWidth)
	r.dc.Stroke()
}

// Glow implements repositories.Canvas
func (r *Raster) Glow(x, y, radius float64, c color.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cr, cg, cb, _ := c.RGBA()
	inner := color.NRGBA{R: uint8(cr >> 8), G: uint8(cg >> 8), B: uint8(cb >> 8), A: 0x80}
	outer := inner
	outer.A = 0

	grad := gg.NewRadialGradient(x, y, 0, x, y, radius)
	grad.AddColorStop(0, inner)
	grad.AddColorStop(1, outer)

	r.dc.SetFillStyle(grad)
	r.dc.DrawCircle(x, y, radius)
	r.dc.Fill()
}

// Composite returns the overlay drawn over background, scaled to the canvas
// size. A nil background yields the overlay alone.
func (r *Raster) Composite(background image.Image) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, h := r.dc.Width(), r.dc.Height()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if background != nil {
		draw.ApproxBiLinear.Scale(out, out.Bounds(), background, background.Bounds(), draw.Src, nil)
	}
	draw.Draw(out, out.Bounds(), r.dc.Image(), image.Point{}, draw.Over)
	return out
}

// SavePNG writes the overlay composited over background to path
func (r *Raster) SavePNG(path string, background image.Image) error {
	if err := gg.SavePNG(path, r.Composite(background)); err != nil {
		return fmt.Errorf("failed to save overlay snapshot: %w", err)
	}
	return nil
}

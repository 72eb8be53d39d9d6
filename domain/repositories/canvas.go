package repositories

import "image/color"

// Canvas is a fixed-size drawing surface in pixel coordinates
type Canvas interface {
	Size() (width, height int)
	Clear()
	Line(x1, y1, x2, y2 float64, c color.Color, width float64)
	Circle(x, y, radius float64, fill, stroke color.Color, strokeWidth float64)
	// Glow paints a soft halo of the given color around a point.
	Glow(x, y, radius float64, c color.Color)
}

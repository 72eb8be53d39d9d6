package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// jpegQuality is fixed; the server's pose model is tuned for it.
const jpegQuality = 50

// Encoder scales frames to a fixed size and compresses them as JPEG
type Encoder struct {
	width, height int
	scaler        draw.Scaler
	dst           *image.RGBA
	buf           bytes.Buffer
}

// NewEncoder creates an encoder producing width x height images
func NewEncoder(width, height int) *Encoder {
	return &Encoder{
		width:  width,
		height: height,
		scaler: draw.ApproxBiLinear,
		dst:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Encode returns the JPEG bytes of src scaled to the output size.
// The returned slice is owned by the caller. Not safe for concurrent use.
func (e *Encoder) Encode(src image.Image) ([]byte, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	e.scaler.Scale(e.dst, e.dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, e.dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

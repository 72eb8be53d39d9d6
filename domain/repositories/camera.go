package repositories

import (
	"context"
	"image"
)

// Camera acquires exclusive access to a video device
type Camera interface {
	// Acquire opens the device. Implementations should honor ctx cancellation.
	Acquire(ctx context.Context) (VideoSource, error)
}

// VideoSource is a live video feed owned by one session
type VideoSource interface {
	// Dimensions returns the decoded frame size, zero until the first frame decodes.
	Dimensions() (width, height int)
	// Frame samples the current frame.
	Frame() (image.Image, error)
	// Stop releases the device. Safe to call more than once.
	Stop()
}

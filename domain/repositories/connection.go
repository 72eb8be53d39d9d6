package repositories

import (
	"context"
	"errors"
)

// ErrFrameInFlight is returned by SendFrame while the previous frame is still
// pending or being written.
var ErrFrameInFlight = errors.New("previous frame still in flight")

// Connection is the single ordered, bidirectional session channel
type Connection interface {
	// Send queues a control message. Control messages are written in call
	// order and ahead of any pending frame.
	Send(ctx context.Context, payload []byte) error
	// SendFrame hands a frame to the writer without waiting. At most one frame
	// is pending or being written; while one is, SendFrame returns ErrFrameInFlight.
	SendFrame(payload []byte) error
	// FrameInFlight reports whether a frame is pending or being written.
	FrameInFlight() bool
	// Messages delivers incoming text messages.
	Messages() <-chan []byte
	// Closed is closed exactly once when the connection terminates for any reason.
	Closed() <-chan struct{}
	// Err returns the cause of closure, nil for a local Close.
	Err() error
	Close() error
}

// Dialer opens session connections
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

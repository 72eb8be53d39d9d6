package coach

import (
	"fmt"
	"time"

	"github.com/pulih-app/coach/internal/protocol"
)

// eventFromMessage routes a decoded server message to a state machine event
func eventFromMessage(msg interface{}, at time.Time) (Event, error) {
	switch m := msg.(type) {
	case *protocol.AckMessage:
		return Event{Kind: EventAck, At: at, Message: m.Message}, nil

	case *protocol.StateMessage:
		ev := Event{
			Kind:          EventServerState,
			At:            at,
			ServerState:   m.Data.SessionState,
			Pose:          m.Keypoints.Pose(),
			SkeletonColor: m.SkeletonColor,
			Feedback:      m.Feedback,
		}
		if m.Data.Progress != nil {
			progress := m.Data.Progress.ToProgress()
			ev.Progress = &progress
		}
		if m.Data.Analysis != nil {
			ev.Score = m.Data.Analysis.Score
		}
		return ev, nil

	case *protocol.FeedbackMessage:
		item := m.Feedback
		return Event{Kind: EventFeedback, At: at, Feedback: &item}, nil

	case *protocol.SessionEndedMessage:
		summary := m.Summary
		return Event{Kind: EventServerEnded, At: at, Summary: &summary}, nil

	case *protocol.ErrorMessage:
		return Event{Kind: EventServerError, At: at, Message: m.Message}, nil

	default:
		return Event{}, fmt.Errorf("%w: %T", protocol.ErrUnknownType, msg)
	}
}

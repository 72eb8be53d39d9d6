package coach

import (
	"errors"
	"fmt"
	"time"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/internal/protocol"
)

var (
	// ErrInvalidTransition is returned when an event is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// EventKind identifies what happened to a session
type EventKind int

const (
	EventCameraReady EventKind = iota
	EventAck
	EventBegin
	EventPause
	EventResume
	EventRest
	EventEnd
	EventServerState
	EventFeedback
	EventServerEnded
	EventServerError
	EventConnectionClosed
)

var eventNames = map[EventKind]string{
	EventCameraReady:      "camera_ready",
	EventAck:              "ack",
	EventBegin:            "begin",
	EventPause:            "pause",
	EventResume:           "resume",
	EventRest:             "rest",
	EventEnd:              "end",
	EventServerState:      "server_state",
	EventFeedback:         "feedback",
	EventServerEnded:      "server_ended",
	EventServerError:      "server_error",
	EventConnectionClosed: "connection_closed",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is an input to the state machine. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind
	At   time.Time

	Progress      *entities.Progress
	Score         *float64
	ServerState   string
	Pose          entities.Pose
	SkeletonColor string
	Feedback      *entities.FeedbackItem
	Summary       *entities.SessionSummary
	Message       string
}

// EndReason says why a session ended
type EndReason string

const (
	EndReasonUser         EndReason = "user"
	EndReasonServer       EndReason = "server"
	EndReasonDisconnected EndReason = "disconnected"
)

// EffectKind identifies a side effect the controller must perform
type EffectKind int

const (
	EffectSend EffectKind = iota
	EffectStartPipeline
	EffectStopPipeline
	EffectReleaseCamera
	EffectCloseConnection
	EffectFlushAudio
	EffectEnqueueAudio
	EffectDrawSkeleton
	EffectClearOverlay
	EffectNotifyState
	EffectNotifyFeedback
	EffectNotifyEnded
	// EffectAwaitSummary gives the server a short grace to answer a user end
	// with session_ended before the connection closes.
	EffectAwaitSummary
)

// Effect is an instruction produced by Apply
type Effect struct {
	Kind EffectKind

	// Message is the protocol message for EffectSend.
	Message interface{}
	// Audio is a base64 clip for EffectEnqueueAudio.
	Audio string

	Pose          entities.Pose
	SkeletonColor string
	Feedback      *entities.FeedbackItem
	Summary       *entities.SessionSummary
	Reason        EndReason
}

type transition func(s entities.Session, ev Event) (entities.Session, []Effect, error)

// transitions is the dispatch table keyed by event kind.
var transitions = map[EventKind]transition{
	EventCameraReady:      onCameraReady,
	EventAck:              onAck,
	EventBegin:            onBegin,
	EventPause:            controlFrom(entities.SessionStateExercising, entities.SessionStatePaused, protocol.ActionPause),
	EventRest:             controlFrom(entities.SessionStateExercising, entities.SessionStateResting, protocol.ActionRest),
	EventResume:           onResume,
	EventEnd:              onUserEnd,
	EventServerState:      onServerState,
	EventFeedback:         onFeedback,
	EventServerEnded:      onServerEnded,
	EventServerError:      onServerError,
	EventConnectionClosed: onConnectionClosed,
}

// Apply computes the next session and the effects of ev. It never mutates s.
// On error the returned session equals s and there are no effects.
func Apply(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	t, ok := transitions[ev.Kind]
	if !ok {
		return s, nil, fmt.Errorf("%w: unknown event %s", ErrInvalidTransition, ev.Kind)
	}

	next, effects, err := t(s, ev)
	if err != nil {
		return s, nil, err
	}
	return next, effects, nil
}

func invalid(s entities.Session, ev Event) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev.Kind, s.State)
}

func notify() Effect { return Effect{Kind: EffectNotifyState} }

func onCameraReady(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State != entities.SessionStatePreparing {
		return s, nil, invalid(s, ev)
	}
	s.CameraReady = true
	return s, []Effect{notify()}, nil
}

// onAck is diagnostic: it only unlocks begin.
func onAck(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State == entities.SessionStateEnded || s.Acknowledged {
		return s, nil, nil
	}
	s.Acknowledged = true
	return s, []Effect{notify()}, nil
}

func onBegin(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if !s.CanBegin() {
		return s, nil, invalid(s, ev)
	}
	s.State = entities.SessionStateExercising
	return s, []Effect{
		{Kind: EffectSend, Message: protocol.NewBegin()},
		{Kind: EffectStartPipeline},
		notify(),
	}, nil
}

// controlFrom builds a user control transition. The pipeline keeps ticking;
// its gate closes because the state is no longer exercising.
func controlFrom(from, to entities.SessionState, action protocol.ControlAction) transition {
	return func(s entities.Session, ev Event) (entities.Session, []Effect, error) {
		if s.State != from {
			return s, nil, invalid(s, ev)
		}
		s.State = to
		return s, []Effect{
			{Kind: EffectSend, Message: protocol.NewControl(action)},
			notify(),
		}, nil
	}
}

func onResume(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State != entities.SessionStatePaused && s.State != entities.SessionStateResting {
		return s, nil, invalid(s, ev)
	}
	s.State = entities.SessionStateExercising
	return s, []Effect{
		{Kind: EffectSend, Message: protocol.NewControl(protocol.ActionResume)},
		notify(),
	}, nil
}

func onServerState(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State == entities.SessionStateEnded {
		return s, nil, nil
	}

	var effects []Effect
	if ev.Progress != nil {
		s.ApplyProgress(*ev.Progress)
	}
	if ev.Score != nil {
		s.SetScore(*ev.Score)
	}
	if ev.ServerState != "" {
		s.ServerState = ev.ServerState
	}
	if ev.Pose != nil {
		effects = append(effects, Effect{Kind: EffectDrawSkeleton, Pose: ev.Pose, SkeletonColor: ev.SkeletonColor})
	}
	if ev.Feedback != nil {
		effects = append(effects, feedbackEffects(*ev.Feedback)...)
	}
	return s, append(effects, notify()), nil
}

func onFeedback(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State == entities.SessionStateEnded || ev.Feedback == nil {
		return s, nil, nil
	}
	return s, feedbackEffects(*ev.Feedback), nil
}

func onServerError(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State == entities.SessionStateEnded {
		return s, nil, nil
	}
	item := entities.FeedbackItem{Text: ev.Message, Kind: entities.FeedbackInfo}
	return s, []Effect{{Kind: EffectNotifyFeedback, Feedback: &item}}, nil
}

func feedbackEffects(item entities.FeedbackItem) []Effect {
	effects := []Effect{{Kind: EffectNotifyFeedback, Feedback: &item}}
	if item.HasAudio() {
		effects = append(effects, Effect{Kind: EffectEnqueueAudio, Audio: item.Audio})
	}
	return effects
}

func onUserEnd(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State == entities.SessionStateEnded {
		return s, nil, nil
	}
	// Tell the server before the connection goes away.
	effects := []Effect{{Kind: EffectSend, Message: protocol.NewControl(protocol.ActionEnd)}}
	s, teardown := end(s, ev, nil, EndReasonUser)
	return s, append(effects, teardown...), nil
}

func onServerEnded(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State == entities.SessionStateEnded {
		return s, nil, nil
	}
	s, effects := end(s, ev, ev.Summary, EndReasonServer)
	return s, effects, nil
}

func onConnectionClosed(s entities.Session, ev Event) (entities.Session, []Effect, error) {
	if s.State == entities.SessionStateEnded {
		return s, nil, nil
	}
	s, effects := end(s, ev, nil, EndReasonDisconnected)
	return s, effects, nil
}

// end moves s to ended and lists the teardown. Stopping the pipeline waits
// for a tick in progress, so the camera is released only after the last sample.
func end(s entities.Session, ev Event, summary *entities.SessionSummary, reason EndReason) (entities.Session, []Effect) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	s.End(at, summary)

	effects := []Effect{
		{Kind: EffectStopPipeline},
		{Kind: EffectFlushAudio},
		{Kind: EffectClearOverlay},
		{Kind: EffectReleaseCamera},
	}
	if reason == EndReasonUser {
		effects = append(effects, Effect{Kind: EffectAwaitSummary})
	}
	return s, append(effects,
		Effect{Kind: EffectCloseConnection},
		notify(),
		Effect{Kind: EffectNotifyEnded, Summary: summary, Reason: reason},
	)
}

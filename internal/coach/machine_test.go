package coach

import (
	"errors"
	"testing"
	"time"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/internal/protocol"
)

func preparedSession() entities.Session {
	s := entities.NewSession("pelvic-tilt", "user-1")
	s.CameraReady = true
	s.Acknowledged = true
	return *s
}

func inState(state entities.SessionState) entities.Session {
	s := preparedSession()
	s.State = state
	return s
}

func effectKinds(effects []Effect) []EffectKind {
	kinds := make([]EffectKind, len(effects))
	for i, e := range effects {
		kinds[i] = e.Kind
	}
	return kinds
}

func hasEffect(effects []Effect, kind EffectKind) bool {
	for _, e := range effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func TestApply_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		from      entities.SessionState
		event     EventKind
		wantState entities.SessionState
		wantErr   bool
		wantSend  interface{}
	}{
		{"begin from preparing", entities.SessionStatePreparing, EventBegin, entities.SessionStateExercising, false, protocol.NewBegin()},
		{"pause while exercising", entities.SessionStateExercising, EventPause, entities.SessionStatePaused, false, protocol.NewControl(protocol.ActionPause)},
		{"rest while exercising", entities.SessionStateExercising, EventRest, entities.SessionStateResting, false, protocol.NewControl(protocol.ActionRest)},
		{"resume from paused", entities.SessionStatePaused, EventResume, entities.SessionStateExercising, false, protocol.NewControl(protocol.ActionResume)},
		{"resume from resting", entities.SessionStateResting, EventResume, entities.SessionStateExercising, false, protocol.NewControl(protocol.ActionResume)},
		{"end from paused", entities.SessionStatePaused, EventEnd, entities.SessionStateEnded, false, protocol.NewControl(protocol.ActionEnd)},

		{"begin twice", entities.SessionStateExercising, EventBegin, entities.SessionStateExercising, true, nil},
		{"pause while paused", entities.SessionStatePaused, EventPause, entities.SessionStatePaused, true, nil},
		{"rest while paused", entities.SessionStatePaused, EventRest, entities.SessionStatePaused, true, nil},
		{"resume while exercising", entities.SessionStateExercising, EventResume, entities.SessionStateExercising, true, nil},
		{"pause while preparing", entities.SessionStatePreparing, EventPause, entities.SessionStatePreparing, true, nil},
		{"begin after end", entities.SessionStateEnded, EventBegin, entities.SessionStateEnded, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := inState(tt.from)
			got, effects, err := Apply(from, Event{Kind: tt.event})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.State != tt.wantState {
				t.Errorf("Expected state %s, got %s", tt.wantState, got.State)
			}

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Expected ErrInvalidTransition, got %v", err)
				}
				if len(effects) != 0 {
					t.Errorf("Rejected events must have no effects, got %v", effectKinds(effects))
				}
				return
			}

			if effects[0].Kind != EffectSend {
				t.Fatalf("Expected the first effect to send, got %v", effectKinds(effects))
			}
			want, _ := protocol.Encode(tt.wantSend)
			sent, _ := protocol.Encode(effects[0].Message)
			if string(sent) != string(want) {
				t.Errorf("Expected message %s, got %s", want, sent)
			}
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	from := preparedSession()
	score := 80.0

	_, _, err := Apply(from, Event{
		Kind:     EventServerState,
		Progress: &entities.Progress{CurrentRep: 3, TotalReps: 10, Phase: entities.PhaseHold, Percent: 30},
		Score:    &score,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if from.ProgressPercent != 0 || from.LastScore != nil || from.CurrentRep != 0 {
		t.Errorf("Apply mutated its input: %+v", from)
	}
}

func TestApply_BeginRequiresCameraAndAck(t *testing.T) {
	tests := []struct {
		name         string
		cameraReady  bool
		acknowledged bool
	}{
		{"no camera", false, true},
		{"no ack", true, false},
		{"neither", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := preparedSession()
			s.CameraReady = tt.cameraReady
			s.Acknowledged = tt.acknowledged

			got, effects, err := Apply(s, Event{Kind: EventBegin})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition, got %v", err)
			}
			if got.State != entities.SessionStatePreparing || len(effects) != 0 {
				t.Errorf("Expected to stay preparing without effects, got %s %v", got.State, effectKinds(effects))
			}
		})
	}
}

func TestApply_AckAndCameraReady(t *testing.T) {
	s := *entities.NewSession("kegel", "u1")

	s, _, err := Apply(s, Event{Kind: EventAck})
	if err != nil || !s.Acknowledged {
		t.Fatalf("Expected ack to mark the session acknowledged, err=%v", err)
	}
	if s.State != entities.SessionStatePreparing {
		t.Errorf("Ack must not change state, got %s", s.State)
	}

	// A second ack is diagnostic only
	if _, effects, _ := Apply(s, Event{Kind: EventAck}); len(effects) != 0 {
		t.Errorf("Expected repeated ack to have no effects, got %v", effectKinds(effects))
	}

	s, _, err = Apply(s, Event{Kind: EventCameraReady})
	if err != nil || !s.CameraReady {
		t.Fatalf("Expected camera ready, err=%v", err)
	}
	if !s.CanBegin() {
		t.Error("Expected session to be ready to begin")
	}
}

func TestApply_ServerState(t *testing.T) {
	s := inState(entities.SessionStateExercising)
	score := 91.5
	item := entities.FeedbackItem{Text: "Exhale slowly", Kind: entities.FeedbackCorrection, Audio: "UklGRg=="}

	got, effects, err := Apply(s, Event{
		Kind:          EventServerState,
		Progress:      &entities.Progress{CurrentSet: 1, TotalSets: 3, CurrentRep: 4, TotalReps: 10, Phase: entities.PhaseExhale, Percent: 42},
		Score:         &score,
		ServerState:   "exercising",
		Pose:          entities.Pose{entities.Nose: {X: 0.5, Y: 0.1, Visibility: 0.9}},
		SkeletonColor: "yellow",
		Feedback:      &item,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got.ProgressPercent != 42 || got.CurrentRep != 4 || got.CurrentPhase != entities.PhaseExhale {
		t.Errorf("Progress not applied: %+v", got)
	}
	if got.LastScore == nil || *got.LastScore != 91.5 {
		t.Errorf("Expected last score 91.5, got %v", got.LastScore)
	}
	if got.ServerState != "exercising" {
		t.Errorf("Expected server state to be kept, got %s", got.ServerState)
	}

	for _, kind := range []EffectKind{EffectDrawSkeleton, EffectNotifyFeedback, EffectEnqueueAudio, EffectNotifyState} {
		if !hasEffect(effects, kind) {
			t.Errorf("Expected effect %d in %v", kind, effectKinds(effects))
		}
	}
}

func TestApply_FeedbackWithoutAudio(t *testing.T) {
	item := entities.FeedbackItem{Text: "Great job", Kind: entities.FeedbackEncouragement}
	_, effects, err := Apply(inState(entities.SessionStatePaused), Event{Kind: EventFeedback, Feedback: &item})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if hasEffect(effects, EffectEnqueueAudio) {
		t.Error("Feedback without audio must not enqueue a clip")
	}
	if !hasEffect(effects, EffectNotifyFeedback) {
		t.Error("Expected feedback notification")
	}
}

func TestApply_ServerErrorIsInfoFeedback(t *testing.T) {
	s := inState(entities.SessionStateExercising)
	got, effects, err := Apply(s, Event{Kind: EventServerError, Message: "frame too large"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got.State != entities.SessionStateExercising {
		t.Errorf("Server errors must not end the session, got %s", got.State)
	}
	if len(effects) != 1 || effects[0].Feedback == nil || effects[0].Feedback.Kind != entities.FeedbackInfo {
		t.Errorf("Expected one info feedback effect, got %+v", effects)
	}
}

func TestApply_EndPaths(t *testing.T) {
	summary := &entities.SessionSummary{CompletedReps: 10}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		event       Event
		wantReason  EndReason
		wantSummary bool
		wantSend    bool
	}{
		{"user end", Event{Kind: EventEnd, At: at}, EndReasonUser, false, true},
		{"server ended", Event{Kind: EventServerEnded, At: at, Summary: summary}, EndReasonServer, true, false},
		{"connection closed", Event{Kind: EventConnectionClosed, At: at}, EndReasonDisconnected, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, from := range []entities.SessionState{
				entities.SessionStatePreparing,
				entities.SessionStateExercising,
				entities.SessionStatePaused,
				entities.SessionStateResting,
			} {
				got, effects, err := Apply(inState(from), tt.event)
				if err != nil {
					t.Fatalf("Apply() from %s error = %v", from, err)
				}
				if got.State != entities.SessionStateEnded {
					t.Errorf("From %s: expected ended, got %s", from, got.State)
				}
				if got.EndedAt == nil || !got.EndedAt.Equal(at) {
					t.Errorf("From %s: expected ended_at %v, got %v", from, at, got.EndedAt)
				}

				for _, kind := range []EffectKind{
					EffectStopPipeline, EffectFlushAudio, EffectClearOverlay,
					EffectReleaseCamera, EffectCloseConnection, EffectNotifyEnded,
				} {
					if !hasEffect(effects, kind) {
						t.Errorf("From %s: missing teardown effect %d", from, kind)
					}
				}
				if hasEffect(effects, EffectSend) != tt.wantSend {
					t.Errorf("From %s: send effect presence = %v, want %v", from, hasEffect(effects, EffectSend), tt.wantSend)
				}

				last := effects[len(effects)-1]
				if last.Reason != tt.wantReason {
					t.Errorf("Expected reason %s, got %s", tt.wantReason, last.Reason)
				}
				if (last.Summary != nil) != tt.wantSummary {
					t.Errorf("Summary presence = %v, want %v", last.Summary != nil, tt.wantSummary)
				}
			}
		})
	}
}

func TestApply_TeardownOrder(t *testing.T) {
	_, effects, _ := Apply(inState(entities.SessionStateExercising), Event{Kind: EventConnectionClosed})

	index := map[EffectKind]int{}
	for i, e := range effects {
		index[e.Kind] = i
	}
	if index[EffectStopPipeline] > index[EffectReleaseCamera] {
		t.Error("Pipeline must stop before the camera is released")
	}
	if index[EffectNotifyEnded] != len(effects)-1 {
		t.Error("Ended notification must come after teardown")
	}
}

func TestApply_OnlyUserEndAwaitsSummary(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		await bool
	}{
		{"user end", Event{Kind: EventEnd}, true},
		{"server ended", Event{Kind: EventServerEnded, Summary: &entities.SessionSummary{}}, false},
		{"connection closed", Event{Kind: EventConnectionClosed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, effects, err := Apply(inState(entities.SessionStateExercising), tt.event)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}

			index := map[EffectKind]int{}
			for i, e := range effects {
				index[e.Kind] = i
			}
			_, awaits := index[EffectAwaitSummary]
			if awaits != tt.await {
				t.Fatalf("Await presence = %v, want %v in %v", awaits, tt.await, effectKinds(effects))
			}
			if !awaits {
				return
			}
			if index[EffectAwaitSummary] < index[EffectStopPipeline] || index[EffectAwaitSummary] < index[EffectReleaseCamera] {
				t.Error("Frames and camera must stop before waiting for the summary")
			}
			if index[EffectAwaitSummary] > index[EffectCloseConnection] {
				t.Error("The summary wait must happen before the connection closes")
			}
		})
	}
}

func TestApply_EndedIsTerminal(t *testing.T) {
	ended := inState(entities.SessionStateEnded)

	for _, kind := range []EventKind{EventEnd, EventServerEnded, EventConnectionClosed, EventAck, EventServerState, EventFeedback, EventServerError} {
		got, effects, err := Apply(ended, Event{Kind: kind, Feedback: &entities.FeedbackItem{Text: "late"}})
		if err != nil {
			t.Errorf("%s on ended: unexpected error %v", kind, err)
		}
		if len(effects) != 0 {
			t.Errorf("%s on ended: expected no effects, got %v", kind, effectKinds(effects))
		}
		if got.State != entities.SessionStateEnded {
			t.Errorf("%s on ended: left the terminal state", kind)
		}
	}
}

func TestApply_UnknownEvent(t *testing.T) {
	_, _, err := Apply(preparedSession(), Event{Kind: EventKind(99)})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

package devserver

import (
	"math"
	"time"

	e "github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
	"github.com/pulih-app/coach/internal/protocol"
)

// Server-side session_state values.
const (
	stateReady      = "ready"
	stateExercising = "exercising"
	statePaused     = "paused"
	stateResting    = "resting"
	stateCompleted  = "completed"
)

// restingPose is a figure lying on its back, knees bent, in normalized
// image coordinates.
var restingPose = map[int][2]float64{
	e.Nose: {0.18, 0.52}, e.LeftEyeInner: {0.17, 0.50}, e.LeftEye: {0.17, 0.49}, e.LeftEyeOuter: {0.17, 0.48},
	e.RightEyeInner: {0.17, 0.54}, e.RightEye: {0.17, 0.55}, e.RightEyeOuter: {0.17, 0.56},
	e.LeftEar: {0.20, 0.47}, e.RightEar: {0.20, 0.57}, e.MouthLeft: {0.19, 0.51}, e.MouthRight: {0.19, 0.53},
	e.LeftShoulder: {0.28, 0.44}, e.RightShoulder: {0.28, 0.60},
	e.LeftElbow: {0.38, 0.40}, e.RightElbow: {0.38, 0.64},
	e.LeftWrist: {0.48, 0.40}, e.RightWrist: {0.48, 0.64},
	e.LeftPinky: {0.50, 0.40}, e.RightPinky: {0.50, 0.64},
	e.LeftIndex: {0.51, 0.41}, e.RightIndex: {0.51, 0.63},
	e.LeftThumb: {0.50, 0.42}, e.RightThumb: {0.50, 0.62},
	e.LeftHip: {0.55, 0.46}, e.RightHip: {0.55, 0.58},
	e.LeftKnee: {0.68, 0.40}, e.RightKnee: {0.68, 0.64},
	e.LeftAnkle: {0.80, 0.46}, e.RightAnkle: {0.80, 0.58},
	e.LeftHeel: {0.81, 0.47}, e.RightHeel: {0.81, 0.57},
	e.LeftFootIndex: {0.84, 0.45}, e.RightFootIndex: {0.84, 0.59},
}

// hipLift is the largest upward hip displacement over a repetition.
const hipLift = 0.08

// simulation stands in for the pose engine: it advances an exercise one
// phase per framesPerUpdate received frames.
type simulation struct {
	exercise        e.Exercise
	framesPerUpdate int

	state  string
	frames int
	set    int
	rep    int
	phase  int
	scores []float64

	startedAt time.Time
}

func newSimulation(exercise e.Exercise, framesPerUpdate int, now time.Time) *simulation {
	if framesPerUpdate < 1 {
		framesPerUpdate = 1
	}
	return &simulation{
		exercise:        exercise,
		framesPerUpdate: framesPerUpdate,
		state:           stateReady,
		set:             1,
		rep:             1,
		startedAt:       now,
	}
}

// step is the outcome of one simulated analysis update.
type step struct {
	state    *protocol.StateMessage
	repDone  bool
	prompt   repositories.CoachingPrompt
	finished bool
}

// frame records a received frame. ok is false when no update is due.
func (s *simulation) frame() (st step, ok bool) {
	if s.state != stateExercising {
		return step{}, false
	}
	s.frames++
	if s.frames%s.framesPerUpdate != 0 {
		return step{}, false
	}

	s.phase++
	if s.phase == len(s.exercise.Phases) {
		s.phase = 0
		score := scoreFor(s.set, s.rep)
		s.scores = append(s.scores, score)

		st.repDone = true
		st.prompt = repositories.CoachingPrompt{
			ExerciseName: s.exercise.Name,
			Phase:        s.exercise.Phases[len(s.exercise.Phases)-1],
			Rep:          s.rep,
			TotalReps:    s.exercise.Reps,
			Score:        score,
		}

		s.rep++
		if s.rep > s.exercise.Reps {
			s.rep = 1
			s.set++
		}
		if s.set > s.exercise.Sets {
			s.set = s.exercise.Sets
			s.rep = s.exercise.Reps
			s.state = stateCompleted
			st.finished = true
		}
	}

	st.state = s.stateMessage()
	return st, true
}

// control applies a control action and returns the resulting state push
func (s *simulation) control(action protocol.ControlAction) *protocol.StateMessage {
	if s.state == stateCompleted {
		return s.stateMessage()
	}
	switch action {
	case protocol.ActionPause:
		s.state = statePaused
	case protocol.ActionRest:
		s.state = stateResting
	case protocol.ActionResume:
		s.state = stateExercising
	}
	return s.stateMessage()
}

func (s *simulation) begin() *protocol.StateMessage {
	s.state = stateExercising
	return s.stateMessage()
}

func (s *simulation) completedReps() int {
	return len(s.scores)
}

func (s *simulation) stateMessage() *protocol.StateMessage {
	total := s.exercise.Sets * s.exercise.Reps
	msg := &protocol.StateMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.MessageTypeState},
		Data: protocol.StateData{
			Progress: &protocol.ProgressData{
				CurrentSet: s.set,
				TotalSets:  s.exercise.Sets,
				CurrentRep: s.rep,
				TotalReps:  s.exercise.Reps,
				Phase:      string(s.exercise.Phases[s.phase]),
				Progress:   100 * float64(s.completedReps()) / float64(total),
			},
			SessionState: s.state,
		},
	}

	if s.state == stateExercising || s.state == stateCompleted {
		fraction := float64(s.phase+1) / float64(len(s.exercise.Phases))
		msg.Keypoints = protocol.Keypoints(syntheticPose(fraction))
	}
	if n := len(s.scores); n > 0 {
		score := s.scores[n-1]
		msg.Data.Analysis = &protocol.AnalysisData{Score: &score}
		msg.SkeletonColor = colorForScore(score)
	}
	return msg
}

func (s *simulation) summary(now time.Time) e.SessionSummary {
	var sum float64
	for _, v := range s.scores {
		sum += v
	}
	out := e.SessionSummary{
		CompletedReps:   len(s.scores),
		SessionDuration: now.Sub(s.startedAt).Seconds(),
	}
	if len(s.scores) > 0 {
		out.AverageScore = math.Round(sum/float64(len(s.scores))*10) / 10
	}
	return out
}

// scoreFor is a deterministic form score in [62, 97].
func scoreFor(set, rep int) float64 {
	return float64(62 + (set*7+rep*13)%36)
}

func colorForScore(score float64) string {
	switch {
	case score >= 80:
		return "green"
	case score >= 40:
		return "yellow"
	default:
		return "red"
	}
}

// syntheticPose lifts the hips along a half sine over the repetition.
func syntheticPose(fraction float64) e.Pose {
	lift := hipLift * math.Sin(math.Pi*fraction)
	pose := make(e.Pose, len(restingPose))
	for idx, p := range restingPose {
		y := p[1]
		if idx == e.LeftHip || idx == e.RightHip {
			y -= lift
		}
		vis := 0.95
		// Far-side face landmarks are harder to see.
		if idx == e.RightEar || idx == e.RightEyeOuter {
			vis = 0.4
		}
		pose[idx] = e.Keypoint{X: p[0], Y: y, Visibility: vis}
	}
	return pose
}

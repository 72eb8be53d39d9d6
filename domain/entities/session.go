package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a live coaching session
type SessionState string

const (
	SessionStatePreparing  SessionState = "preparing"
	SessionStateExercising SessionState = "exercising"
	SessionStatePaused     SessionState = "paused"
	SessionStateResting    SessionState = "resting"
	SessionStateEnded      SessionState = "ended"
)

// Phase is a sub-stage of a repetition reported by the server
type Phase string

const (
	PhasePreparation Phase = "preparation"
	PhaseInhale      Phase = "inhale"
	PhaseExhale      Phase = "exhale"
	PhaseHold        Phase = "hold"
	PhaseRelease     Phase = "release"
	PhaseRest        Phase = "rest"
)

// ParsePhase maps a wire phase name to a Phase. Unknown names yield false.
func ParsePhase(name string) (Phase, bool) {
	switch p := Phase(name); p {
	case PhasePreparation, PhaseInhale, PhaseExhale, PhaseHold, PhaseRelease, PhaseRest:
		return p, true
	}
	return "", false
}

// Progress is the set/rep/phase position pushed by the server
type Progress struct {
	CurrentSet int
	TotalSets  int
	CurrentRep int
	TotalReps  int
	Phase      Phase
	Percent    float64
}

// Session represents one live training instance on the client
type Session struct {
	ID         string       `json:"id"`
	ExerciseID string       `json:"exercise_id"`
	UserID     string       `json:"user_id"`
	State      SessionState `json:"state"`

	CurrentSet      int      `json:"current_set"`
	TotalSets       int      `json:"total_sets"`
	CurrentRep      int      `json:"current_rep"`
	TotalReps       int      `json:"total_reps"`
	CurrentPhase    Phase    `json:"current_phase"`
	ProgressPercent float64  `json:"progress_percent"`
	LastScore       *float64 `json:"last_score,omitempty"`

	// ServerState is the opaque session_state string echoed by the server.
	ServerState string `json:"server_state,omitempty"`

	CameraReady  bool `json:"camera_ready"`
	Acknowledged bool `json:"acknowledged"`

	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Summary   *SessionSummary `json:"summary,omitempty"`
}

// NewSession creates a session in the preparing state with a fresh client-side ID
func NewSession(exerciseID, userID string) *Session {
	return &Session{
		ID:           uuid.New().String(),
		ExerciseID:   exerciseID,
		UserID:       userID,
		State:        SessionStatePreparing,
		CurrentPhase: PhasePreparation,
		StartedAt:    time.Now(),
	}
}

// ApplyProgress copies a server progress push into the session
func (s *Session) ApplyProgress(p Progress) {
	s.CurrentSet = p.CurrentSet
	s.TotalSets = p.TotalSets
	s.CurrentRep = p.CurrentRep
	s.TotalReps = p.TotalReps
	if p.Phase != "" {
		s.CurrentPhase = p.Phase
	}
	s.ProgressPercent = clampPercent(p.Percent)
}

// SetScore records the latest analysis score, clamped to 0-100
func (s *Session) SetScore(score float64) {
	v := clampPercent(score)
	s.LastScore = &v
}

// IsLive reports whether the session still owns the camera and connection
func (s *Session) IsLive() bool {
	return s.State != SessionStateEnded
}

// CanBegin reports whether the begin action is legal right now
func (s *Session) CanBegin() bool {
	return s.State == SessionStatePreparing && s.CameraReady && s.Acknowledged
}

// End moves the session to the terminal state
func (s *Session) End(at time.Time, summary *SessionSummary) {
	s.State = SessionStateEnded
	s.EndedAt = &at
	if summary != nil {
		s.Summary = summary
	}
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.ExerciseID == "" {
		return errors.New("exercise_id is required")
	}

	switch s.State {
	case SessionStatePreparing, SessionStateExercising, SessionStatePaused, SessionStateResting, SessionStateEnded:
	default:
		return errors.New("invalid session state")
	}

	if s.ProgressPercent < 0 || s.ProgressPercent > 100 {
		return errors.New("progress_percent must be between 0 and 100")
	}

	return nil
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

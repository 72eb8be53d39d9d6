package entities

import "time"

// Achievement is a badge earned by the user
type Achievement struct {
	ID          string `json:"id" bson:"id"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

// SessionSummary is pushed by the server when a session ends
type SessionSummary struct {
	AverageScore    float64       `json:"average_score" bson:"average_score"`
	CompletedReps   int           `json:"completed_reps" bson:"completed_reps"`
	SessionDuration float64       `json:"session_duration" bson:"session_duration"` // seconds
	NewAchievements []Achievement `json:"new_achievements,omitempty" bson:"new_achievements,omitempty"`
}

// Duration returns the session length as a time.Duration
func (s SessionSummary) Duration() time.Duration {
	return time.Duration(s.SessionDuration * float64(time.Second))
}

// SessionRecord is a finished session as stored by the coaching server
type SessionRecord struct {
	ID         string         `json:"id" bson:"_id,omitempty"`
	SessionID  string         `json:"session_id" bson:"session_id"`
	UserID     string         `json:"user_id" bson:"user_id"`
	ExerciseID string         `json:"exercise_id" bson:"exercise_id"`
	Summary    SessionSummary `json:"summary" bson:"summary"`
	StartedAt  time.Time      `json:"started_at" bson:"started_at"`
	EndedAt    time.Time      `json:"ended_at" bson:"ended_at"`
}

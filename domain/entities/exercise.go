package entities

import "errors"

// Exercise is a catalog entry for a guided exercise
type Exercise struct {
	ID          string  `json:"id" bson:"_id"`
	Name        string  `json:"name" bson:"name"`
	Description string  `json:"description" bson:"description"`
	Phases      []Phase `json:"phases" bson:"phases"`
	Sets        int     `json:"sets" bson:"sets"`
	Reps        int     `json:"reps" bson:"reps"`
	// Focus names the highlighted body-part group for the overlay.
	Focus string `json:"focus,omitempty" bson:"focus,omitempty"`
}

// ProgressSummary aggregates a user's finished sessions
type ProgressSummary struct {
	TotalSessions int     `json:"total_sessions"`
	TotalReps     int     `json:"total_reps"`
	AverageScore  float64 `json:"average_score"`
	TotalMinutes  float64 `json:"total_minutes"`
}

// Validate validates the exercise definition
func (e *Exercise) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.Name == "" {
		return errors.New("name is required")
	}
	if e.Sets <= 0 || e.Reps <= 0 {
		return errors.New("sets and reps must be positive")
	}
	if len(e.Phases) == 0 {
		return errors.New("at least one phase is required")
	}
	return nil
}

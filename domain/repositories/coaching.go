package repositories

import (
	"context"

	"github.com/pulih-app/coach/domain/entities"
)

// CoachingPrompt describes the moment feedback is requested for
type CoachingPrompt struct {
	ExerciseName string
	Phase        entities.Phase
	Rep          int
	TotalReps    int
	Score        float64
}

// FeedbackCoach turns an analysis moment into a short coaching line
type FeedbackCoach interface {
	Coach(ctx context.Context, prompt CoachingPrompt) (entities.FeedbackItem, error)
}

// TextToSpeech voices a coaching line as one playable clip
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SummaryRepository stores finished sessions
type SummaryRepository interface {
	Save(ctx context.Context, record *entities.SessionRecord) error
	ListByUser(ctx context.Context, userID string) ([]entities.SessionRecord, error)
}

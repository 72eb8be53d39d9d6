package repositories

import (
	"context"

	"github.com/pulih-app/coach/domain/entities"
)

// ExerciseCatalog reads exercise definitions and user progress
type ExerciseCatalog interface {
	GetExercise(ctx context.Context, id string) (*entities.Exercise, error)
	GetProgressSummary(ctx context.Context) (*entities.ProgressSummary, error)
	ListAchievements(ctx context.Context) ([]entities.Achievement, error)
}

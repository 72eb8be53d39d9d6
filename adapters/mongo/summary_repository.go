package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
)

const summaryCollection = "session_summaries"

// SummaryRepository stores finished coaching sessions in MongoDB
type SummaryRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SummaryRepository = (*SummaryRepository)(nil)

// NewSummaryRepository creates a new MongoDB summary repository
func NewSummaryRepository(db *mongo.Database, logger *zap.Logger) *SummaryRepository {
	return &SummaryRepository{
		collection: db.Collection(summaryCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the lookup index used by ListByUser
func (r *SummaryRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "ended_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create summary index: %w", err)
	}
	return nil
}

// Save implements repositories.SummaryRepository
func (r *SummaryRepository) Save(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if record.UserID == "" {
		return errors.New("user ID cannot be empty")
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now()
	}

	doc := bson.M{
		"session_id":  record.SessionID,
		"user_id":     record.UserID,
		"exercise_id": record.ExerciseID,
		"summary":     record.Summary,
		"started_at":  record.StartedAt,
		"ended_at":    record.EndedAt,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save session summary: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid.Hex()
	}

	r.logger.Debug("Session summary saved",
		zap.String("sessionID", record.SessionID),
		zap.String("userID", record.UserID))
	return nil
}

// ListByUser implements repositories.SummaryRepository. Newest first.
func (r *SummaryRepository) ListByUser(ctx context.Context, userID string) ([]entities.SessionRecord, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "ended_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var records []entities.SessionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return records, nil
}

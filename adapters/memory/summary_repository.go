package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
)

// SummaryRepository is an in-memory SummaryRepository for development
type SummaryRepository struct {
	mu     sync.RWMutex
	byUser map[string][]entities.SessionRecord
}

var _ repositories.SummaryRepository = (*SummaryRepository)(nil)

// NewSummaryRepository creates a new in-memory summary repository
func NewSummaryRepository() *SummaryRepository {
	return &SummaryRepository{byUser: make(map[string][]entities.SessionRecord)}
}

// Save implements repositories.SummaryRepository
func (m *SummaryRepository) Save(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if record.UserID == "" {
		return errors.New("user ID cannot be empty")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[record.UserID] = append(m.byUser[record.UserID], *record)
	return nil
}

// ListByUser implements repositories.SummaryRepository. Newest first.
func (m *SummaryRepository) ListByUser(ctx context.Context, userID string) ([]entities.SessionRecord, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	m.mu.RLock()
	records := append([]entities.SessionRecord(nil), m.byUser[userID]...)
	m.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].EndedAt.After(records[j].EndedAt)
	})
	return records, nil
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/pulih-app/coach/domain/entities"
)

func TestSummaryRepository(t *testing.T) {
	repo := NewSummaryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, reps := range []int{5, 10, 15} {
		record := &entities.SessionRecord{
			UserID:  "user-1",
			Summary: entities.SessionSummary{CompletedReps: reps},
			EndedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if record.ID == "" {
			t.Error("Expected an ID to be assigned")
		}
	}

	records, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(records) != 3 || records[0].Summary.CompletedReps != 15 {
		t.Errorf("Expected 3 records newest first, got %+v", records)
	}

	// Returned slices are copies.
	records[0].UserID = "tampered"
	again, _ := repo.ListByUser(ctx, "user-1")
	if again[0].UserID != "user-1" {
		t.Error("Expected stored records to be isolated from callers")
	}

	if err := repo.Save(ctx, &entities.SessionRecord{}); err == nil {
		t.Error("Expected error for missing user")
	}
	if _, err := repo.ListByUser(ctx, ""); err == nil {
		t.Error("Expected error for empty user")
	}
}

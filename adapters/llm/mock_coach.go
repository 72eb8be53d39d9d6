package llm

import (
	"context"
	"sync"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
)

var scripted = map[entities.FeedbackKind][]string{
	entities.FeedbackSafetyWarning: {
		"Slow down and keep your lower back pressed gently to the mat.",
		"Pause if you feel any pulling along your belly.",
	},
	entities.FeedbackCorrection: {
		"Breathe out as you lift, and keep your ribs soft.",
		"Keep your knees hip-width apart.",
		"Let your shoulders relax away from your ears.",
	},
	entities.FeedbackEncouragement: {
		"Lovely control, keep that steady rhythm.",
		"Great form, you are doing beautifully.",
		"Nice and smooth, well done.",
	},
}

// MockCoach returns scripted coaching lines without calling a model
type MockCoach struct {
	mu   sync.Mutex
	next map[entities.FeedbackKind]int
}

var _ repositories.FeedbackCoach = (*MockCoach)(nil)

// NewMockCoach creates a new scripted coach
func NewMockCoach() *MockCoach {
	return &MockCoach{next: make(map[entities.FeedbackKind]int)}
}

// Coach implements repositories.FeedbackCoach. Lines rotate per kind.
func (m *MockCoach) Coach(ctx context.Context, prompt repositories.CoachingPrompt) (entities.FeedbackItem, error) {
	kind := kindForScore(prompt.Score)
	lines := scripted[kind]

	m.mu.Lock()
	i := m.next[kind]
	m.next[kind] = (i + 1) % len(lines)
	m.mu.Unlock()

	return entities.FeedbackItem{Text: lines[i], Kind: kind}, nil
}

package devserver

import "github.com/pulih-app/coach/domain/entities"

type achievementRule struct {
	achievement entities.Achievement
	earned      func(records []entities.SessionRecord) bool
}

var achievementRules = []achievementRule{
	{
		achievement: entities.Achievement{ID: "first_session", Name: "First Step", Description: "Completed your first session"},
		earned: func(records []entities.SessionRecord) bool {
			return len(records) > 0
		},
	},
	{
		achievement: entities.Achievement{ID: "fifty_reps", Name: "Fifty Strong", Description: "Completed 50 repetitions"},
		earned: func(records []entities.SessionRecord) bool {
			return summarize(records).TotalReps >= 50
		},
	},
	{
		achievement: entities.Achievement{ID: "great_form", Name: "Great Form", Description: "Averaged 90 or more in a session"},
		earned: func(records []entities.SessionRecord) bool {
			for _, r := range records {
				if r.Summary.CompletedReps > 0 && r.Summary.AverageScore >= 90 {
					return true
				}
			}
			return false
		},
	},
}

func summarize(records []entities.SessionRecord) entities.ProgressSummary {
	var out entities.ProgressSummary
	var scoreSum float64
	scored := 0

	for _, r := range records {
		out.TotalSessions++
		out.TotalReps += r.Summary.CompletedReps
		out.TotalMinutes += r.Summary.SessionDuration / 60
		if r.Summary.CompletedReps > 0 {
			scoreSum += r.Summary.AverageScore
			scored++
		}
	}
	if scored > 0 {
		out.AverageScore = scoreSum / float64(scored)
	}
	return out
}

func achievements(records []entities.SessionRecord) []entities.Achievement {
	out := []entities.Achievement{}
	for _, rule := range achievementRules {
		if rule.earned(records) {
			out = append(out, rule.achievement)
		}
	}
	return out
}

// newAchievements returns what adding latest to history earns.
func newAchievements(history []entities.SessionRecord, latest entities.SessionRecord) []entities.Achievement {
	had := make(map[string]bool)
	for _, a := range achievements(history) {
		had[a.ID] = true
	}

	var out []entities.Achievement
	for _, a := range achievements(append(append([]entities.SessionRecord(nil), history...), latest)) {
		if !had[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

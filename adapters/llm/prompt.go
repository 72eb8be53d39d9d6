package llm

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
)

const systemPrompt = `You are a warm, calm physiotherapy coach guiding a mother through postpartum recovery exercises.
Reply with one short spoken sentence of at most 15 words. No emojis, no lists, no quotes.
Never give medical diagnoses. If form looks unsafe, ask her to slow down or stop.`

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
}

// Score bands, on the 0-100 analysis scale.
const (
	unsafeScore = 40
	goodScore   = 80
)

func kindForScore(score float64) entities.FeedbackKind {
	switch {
	case score < unsafeScore:
		return entities.FeedbackSafetyWarning
	case score < goodScore:
		return entities.FeedbackCorrection
	default:
		return entities.FeedbackEncouragement
	}
}

func describe(p repositories.CoachingPrompt, kind entities.FeedbackKind) string {
	return fmt.Sprintf("Exercise: %s. Phase: %s. Rep %d of %d. Form score %.0f/100. Give a %s.",
		p.ExerciseName, p.Phase, p.Rep, p.TotalReps, p.Score, kindPhrase(kind))
}

func kindPhrase(kind entities.FeedbackKind) string {
	switch kind {
	case entities.FeedbackSafetyWarning:
		return "gentle safety warning"
	case entities.FeedbackCorrection:
		return "single form correction"
	default:
		return "short encouragement"
	}
}

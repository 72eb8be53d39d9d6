package entities

import "strings"

// FeedbackKind classifies a coaching message
type FeedbackKind string

const (
	FeedbackCorrection    FeedbackKind = "correction"
	FeedbackSafetyWarning FeedbackKind = "safety_warning"
	FeedbackEncouragement FeedbackKind = "encouragement"
	FeedbackInfo          FeedbackKind = "info"
)

// NormalizeFeedbackKind maps unknown kinds to info
func NormalizeFeedbackKind(kind string) FeedbackKind {
	switch k := FeedbackKind(strings.ToLower(kind)); k {
	case FeedbackCorrection, FeedbackSafetyWarning, FeedbackEncouragement, FeedbackInfo:
		return k
	}
	return FeedbackInfo
}

// FeedbackItem is a short coaching message, optionally voiced
type FeedbackItem struct {
	Text string       `json:"text"`
	Kind FeedbackKind `json:"type"`
	// Audio is a base64 encoded clip.
	Audio string `json:"audio,omitempty"`
}

// HasAudio reports whether the item carries a voiced clip
func (f FeedbackItem) HasAudio() bool {
	return f.Audio != ""
}

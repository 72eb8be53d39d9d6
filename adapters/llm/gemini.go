package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultMaxTokens      = 60
	defaultTimeoutSeconds = 8
	maxAttempts           = 2
)

// GeminiConfig holds configuration for the Gemini feedback coach
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// contentGenerator is the part of the genai client the coach uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiCoach implements FeedbackCoach using Google's Gemini API
type GeminiCoach struct {
	models         contentGenerator
	model          string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	safetySettings []*genai.SafetySetting
	fallback       repositories.FeedbackCoach
	logger         *zap.Logger
}

var _ repositories.FeedbackCoach = (*GeminiCoach)(nil)

// NewGeminiCoach creates a Gemini backed feedback coach. Requests that fail
// fall back to the scripted mock coach.
func NewGeminiCoach(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiCoach, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiCoach(client.Models, config, logger), nil
}

func newGeminiCoach(models contentGenerator, config GeminiConfig, logger *zap.Logger) *GeminiCoach {
	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	maxTokens := config.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiCoach{
		models:         models,
		model:          model,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        time.Duration(timeoutSeconds) * time.Second,
		safetySettings: safetySettings,
		fallback:       NewMockCoach(),
		logger:         logger,
	}
}

// Coach implements repositories.FeedbackCoach
func (g *GeminiCoach) Coach(ctx context.Context, prompt repositories.CoachingPrompt) (entities.FeedbackItem, error) {
	kind := kindForScore(prompt.Score)

	contents := []*genai.Content{
		genai.NewContentFromText(systemPrompt, genai.RoleUser),
		genai.NewContentFromText(describe(prompt, kind), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SafetySettings:  g.safetySettings,
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		response, err = g.models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}
		g.logger.Warn("Failed to generate feedback, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if err != nil {
		g.logger.Error("Falling back to scripted feedback", zap.Error(err))
		return g.fallback.Coach(ctx, prompt)
	}

	text := responseText(response)
	if text == "" {
		g.logger.Warn("Empty feedback from model")
		return g.fallback.Coach(ctx, prompt)
	}

	return entities.FeedbackItem{Text: text, Kind: kind}, nil
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when the server has no such resource.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the bearer token is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client reads exercises and progress from the coaching server REST API
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

var _ repositories.ExerciseCatalog = (*Client)(nil)

// NewClient creates a catalog client. token may be empty until SetToken.
func NewClient(baseURL, token string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}, nil
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.token = token
}

// TokenResponse is the payload of the token endpoint
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// ErrorResponse is the error body returned by the server
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RequestToken asks the server for a user token and starts using it
func (c *Client) RequestToken(ctx context.Context, userID string) (*TokenResponse, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// GetExercise implements repositories.ExerciseCatalog
func (c *Client) GetExercise(ctx context.Context, id string) (*entities.Exercise, error) {
	if id == "" {
		return nil, fmt.Errorf("exercise id is required")
	}

	var exercise entities.Exercise
	if err := c.do(ctx, http.MethodGet, "/api/v1/exercises/"+url.PathEscape(id), nil, &exercise); err != nil {
		return nil, fmt.Errorf("failed to get exercise %s: %w", id, err)
	}
	if err := exercise.Validate(); err != nil {
		return nil, fmt.Errorf("server returned invalid exercise %s: %w", id, err)
	}
	return &exercise, nil
}

// GetProgressSummary implements repositories.ExerciseCatalog
func (c *Client) GetProgressSummary(ctx context.Context) (*entities.ProgressSummary, error) {
	var summary entities.ProgressSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/progress/summary", nil, &summary); err != nil {
		return nil, fmt.Errorf("failed to get progress summary: %w", err)
	}
	return &summary, nil
}

// ListAchievements implements repositories.ExerciseCatalog
func (c *Client) ListAchievements(ctx context.Context) ([]entities.Achievement, error) {
	var payload struct {
		Achievements []entities.Achievement `json:"achievements"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/achievements", nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return payload.Achievements, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Catalog request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		var e ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DevServerConfig configures the development coaching server
type DevServerConfig struct {
	Port      string
	JWTSecret string
	TokenTTL  time.Duration

	// MongoURI enables persistent session summaries when set.
	MongoURI      string
	MongoDatabase string

	// GeminiAPIKey enables generated coaching text for sessions that ask for it.
	GeminiAPIKey string
	GeminiModel  string

	// FramesPerUpdate is how many received frames advance the simulated exercise one step.
	FramesPerUpdate int

	Log LogConfig
}

// LoadDevServer reads the development server configuration from the environment
func LoadDevServer() (*DevServerConfig, error) {
	_ = godotenv.Load()

	cfg := &DevServerConfig{
		Port:            getEnv("PORT", "8080"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TokenTTL:        7 * 24 * time.Hour,
		MongoURI:        os.Getenv("MONGODB_URI"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "pulih"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		FramesPerUpdate: 3,
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: os.Getenv("LOG_DEVELOPMENT") == "true",
		},
	}

	if v := os.Getenv("FRAMES_PER_UPDATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("FRAMES_PER_UPDATE must be a positive integer")
		}
		cfg.FramesPerUpdate = n
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

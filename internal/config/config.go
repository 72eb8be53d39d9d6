package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the coaching client configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Capture CaptureConfig `yaml:"capture"`
	Overlay OverlayConfig `yaml:"overlay"`
	Audio   AudioConfig   `yaml:"audio"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	// URL is the session websocket endpoint.
	URL string `yaml:"url"`
	// APIBaseURL is the REST base for catalog reads and token requests.
	APIBaseURL string `yaml:"api_base_url"`
	Token      string `yaml:"token"`
}

type SessionConfig struct {
	UserID        string        `yaml:"user_id"`
	UseLLM        bool          `yaml:"use_llm"`
	CameraTimeout time.Duration `yaml:"camera_timeout"`
}

type CaptureConfig struct {
	TargetFPS float64 `yaml:"target_fps"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
}

type OverlayConfig struct {
	Smoothing float64  `yaml:"smoothing"`
	Highlight []string `yaml:"highlight"`
}

type AudioConfig struct {
	Gap time.Duration `yaml:"gap"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:        "ws://localhost:8080/ws",
			APIBaseURL: "http://localhost:8080",
		},
		Session: SessionConfig{
			CameraTimeout: 10 * time.Second,
		},
		Capture: CaptureConfig{
			TargetFPS: 10,
			Width:     640,
			Height:    480,
		},
		Overlay: OverlayConfig{
			Smoothing: 0.25,
		},
		Audio: AudioConfig{
			Gap: 300 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads .env, then the optional YAML file at path, then applies
// environment variable overrides. Env vars use the prefix PULIH_:
//
//	PULIH_SERVER_URL, PULIH_API_BASE_URL, PULIH_TOKEN,
//	PULIH_USER_ID, PULIH_USE_LLM, PULIH_CAMERA_TIMEOUT,
//	PULIH_TARGET_FPS, PULIH_FRAME_WIDTH, PULIH_FRAME_HEIGHT,
//	PULIH_SMOOTHING, PULIH_HIGHLIGHT, PULIH_AUDIO_GAP,
//	PULIH_LOG_LEVEL, PULIH_LOG_DEVELOPMENT
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("PULIH_SERVER_URL", &cfg.Server.URL)
	setString("PULIH_API_BASE_URL", &cfg.Server.APIBaseURL)
	setString("PULIH_TOKEN", &cfg.Server.Token)
	setString("PULIH_USER_ID", &cfg.Session.UserID)
	setBool("PULIH_USE_LLM", &cfg.Session.UseLLM)
	setDuration("PULIH_CAMERA_TIMEOUT", &cfg.Session.CameraTimeout)
	setFloat("PULIH_TARGET_FPS", &cfg.Capture.TargetFPS)
	setInt("PULIH_FRAME_WIDTH", &cfg.Capture.Width)
	setInt("PULIH_FRAME_HEIGHT", &cfg.Capture.Height)
	setFloat("PULIH_SMOOTHING", &cfg.Overlay.Smoothing)
	setDuration("PULIH_AUDIO_GAP", &cfg.Audio.Gap)
	setString("PULIH_LOG_LEVEL", &cfg.Log.Level)
	setBool("PULIH_LOG_DEVELOPMENT", &cfg.Log.Development)

	if v := os.Getenv("PULIH_HIGHLIGHT"); v != "" {
		cfg.Overlay.Highlight = strings.Split(v, ",")
	}

	return errors.Join(errs...)
}

// Validate checks ranges and required fields
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server.url must be a ws:// or wss:// URL")
	}
	if c.Capture.TargetFPS < 0.1 || c.Capture.TargetFPS > 30 {
		return fmt.Errorf("capture.target_fps must be between 0.1 and 30")
	}
	if c.Capture.Width < 1 || c.Capture.Height < 1 {
		return fmt.Errorf("capture.width and capture.height must be positive")
	}
	if c.Overlay.Smoothing <= 0 || c.Overlay.Smoothing >= 1 {
		return fmt.Errorf("overlay.smoothing must be between 0 and 1")
	}
	if c.Audio.Gap < 0 {
		return fmt.Errorf("audio.gap must not be negative")
	}
	if c.Session.CameraTimeout <= 0 {
		return fmt.Errorf("session.camera_timeout must be positive")
	}
	return nil
}

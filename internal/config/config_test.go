package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coach.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Capture.TargetFPS != 10 || cfg.Capture.Width != 640 || cfg.Capture.Height != 480 {
		t.Errorf("Unexpected capture defaults %+v", cfg.Capture)
	}
	if cfg.Audio.Gap != 300*time.Millisecond {
		t.Errorf("Expected 300ms audio gap, got %v", cfg.Audio.Gap)
	}
	if cfg.Overlay.Smoothing != 0.25 {
		t.Errorf("Expected smoothing 0.25, got %v", cfg.Overlay.Smoothing)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  url: wss://coach.example.com/ws
  api_base_url: https://coach.example.com
session:
  user_id: file-user
  camera_timeout: 5s
capture:
  target_fps: 15
overlay:
  highlight: [pelvis]
audio:
  gap: 500ms
`)

	t.Setenv("PULIH_USER_ID", "env-user")
	t.Setenv("PULIH_HIGHLIGHT", "core,legs")
	t.Setenv("PULIH_USE_LLM", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "wss://coach.example.com/ws" {
		t.Errorf("Expected URL from file, got %s", cfg.Server.URL)
	}
	if cfg.Session.UserID != "env-user" {
		t.Errorf("Expected env to override file, got %s", cfg.Session.UserID)
	}
	if cfg.Session.CameraTimeout != 5*time.Second || cfg.Audio.Gap != 500*time.Millisecond {
		t.Errorf("Durations not parsed: %v %v", cfg.Session.CameraTimeout, cfg.Audio.Gap)
	}
	if cfg.Capture.TargetFPS != 15 || cfg.Capture.Width != 640 {
		t.Errorf("Expected file value merged over defaults, got %+v", cfg.Capture)
	}
	if len(cfg.Overlay.Highlight) != 2 || cfg.Overlay.Highlight[0] != "core" {
		t.Errorf("Expected highlight from env, got %v", cfg.Overlay.Highlight)
	}
	if !cfg.Session.UseLLM {
		t.Error("Expected use_llm from env")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{"fps too high", "capture:\n  target_fps: 120\n", nil},
		{"http url", "server:\n  url: http://localhost/ws\n", nil},
		{"bad smoothing", "overlay:\n  smoothing: 1.5\n", nil},
		{"bad yaml", "capture: [\n", nil},
		{"bad env number", "", map[string]string{"PULIH_TARGET_FPS": "fast"}},
		{"bad env duration", "", map[string]string{"PULIH_AUDIO_GAP": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			if _, err := Load(path); err == nil {
				t.Error("Expected Load to fail")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadDevServer(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadDevServer(); err == nil {
		t.Error("Expected error without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("FRAMES_PER_UPDATE", "5")
	cfg, err := LoadDevServer()
	if err != nil {
		t.Fatalf("LoadDevServer() error = %v", err)
	}
	if cfg.Port != "9090" || cfg.FramesPerUpdate != 5 {
		t.Errorf("Unexpected config %+v", cfg)
	}

	t.Setenv("FRAMES_PER_UPDATE", "0")
	if _, err := LoadDevServer(); err == nil {
		t.Error("Expected error for zero frames per update")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "debug", Development: true}); err != nil {
		t.Errorf("NewLogger() error = %v", err)
	}
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	c := Default()
	c.Transcription.Servers = []string{"ws://localhost:9090"}
	return c
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "no recognition servers",
			mutate: func(c *Config) {
				c.Transcription.Servers = nil
			},
			expectError: true,
			errorMsg:    "servers cannot be empty",
		},
		{
			name: "empty server entry",
			mutate: func(c *Config) {
				c.Transcription.Servers = []string{"ws://localhost:9090", ""}
			},
			expectError: true,
			errorMsg:    "servers[1] cannot be empty",
		},
		{
			name: "invalid task",
			mutate: func(c *Config) {
				c.Transcription.Task = "summarize"
			},
			expectError: true,
			errorMsg:    "task must be 'transcribe' or 'translate'",
		},
		{
			name: "empty model",
			mutate: func(c *Config) {
				c.Transcription.Model = ""
			},
			expectError: true,
			errorMsg:    "model cannot be empty",
		},
		{
			name: "no_speech_thresh out of range",
			mutate: func(c *Config) {
				c.Transcription.NoSpeechThresh = 1.5
			},
			expectError: true,
			errorMsg:    "no_speech_thresh must be between 0 and 1",
		},
		{
			name: "translation without target language",
			mutate: func(c *Config) {
				c.Transcription.EnableTranslation = true
				c.Transcription.TargetLanguage = ""
			},
			expectError: true,
			errorMsg:    "target_language cannot be empty",
		},
		{
			name: "zero wait quiet threshold",
			mutate: func(c *Config) {
				c.Transcription.WaitQuietSeconds = 0
			},
			expectError: true,
			errorMsg:    "wait_quiet_seconds must be positive",
		},
		{
			name: "frames per buffer too small",
			mutate: func(c *Config) {
				c.Playback.FramesPerBuffer = 16
			},
			expectError: true,
			errorMsg:    "frames_per_buffer must be between 64 and 16384",
		},
		{
			name: "invalid http port when enabled",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = 70000
			},
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name: "invalid http port ignored when disabled",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 70000
			},
			expectError: false,
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name: "invalid log format",
			mutate: func(c *Config) {
				c.Logging.Format = "xml"
			},
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	content := `
transcription:
  servers:
    - "ws://localhost:9090"
  language: "en"
  task: "transcribe"
  model: "small"
  use_vad: true
  wait_quiet_seconds: 7.5
tts:
  endpoint: "ws://localhost:5002/stream"
playback:
  frames_per_buffer: 2048
http:
  enabled: true
  port: 8080
  address: "127.0.0.1"
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := config.Transcription.Servers[0]; got != "ws://localhost:9090" {
		t.Errorf("Unexpected server: %s", got)
	}
	if config.Transcription.Language != "en" {
		t.Errorf("Unexpected language: %s", config.Transcription.Language)
	}
	if config.Playback.FramesPerBuffer != 2048 {
		t.Errorf("Unexpected frames_per_buffer: %d", config.Playback.FramesPerBuffer)
	}
	if config.TTS.Endpoint != "ws://localhost:5002/stream" {
		t.Errorf("Unexpected tts endpoint: %s", config.TTS.Endpoint)
	}
	if got := config.Transcription.GetWaitQuietDuration(); got != 7500*time.Millisecond {
		t.Errorf("Unexpected wait quiet duration: %v", got)
	}

	// Unset fields keep their defaults.
	if config.Transcription.SendLastNSegments != 10 {
		t.Errorf("Default send_last_n_segments lost: %d", config.Transcription.SendLastNSegments)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("transcription: ["), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestSessionConfig(t *testing.T) {
	c := validConfig()
	c.Transcription.Language = "uk"
	c.Transcription.EnableTranslation = true
	c.Transcription.TargetLanguage = "en"

	sc := c.Transcription.SessionConfig("ws://backend:9090")
	if sc.ServerURL != "ws://backend:9090" {
		t.Errorf("Unexpected server URL: %s", sc.ServerURL)
	}
	if sc.Language != "uk" || sc.TargetLanguage != "en" || !sc.EnableTranslation {
		t.Error("Session config lost transcription settings")
	}
	if sc.WaitQuietThreshold != 15*time.Second {
		t.Errorf("Unexpected wait quiet threshold: %v", sc.WaitQuietThreshold)
	}
}

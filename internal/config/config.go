package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/speech-stream-service/internal/transcription"
)

// Config represents the complete service configuration
type Config struct {
	Transcription TranscriptionConfig `yaml:"transcription"`
	TTS           TTSConfig           `yaml:"tts"`
	Playback      PlaybackConfig      `yaml:"playback"`
	Capture       CaptureConfig       `yaml:"capture"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// TranscriptionConfig contains recognition backend configuration
type TranscriptionConfig struct {
	Servers             []string `yaml:"servers"`
	Language            string   `yaml:"language"`
	Task                string   `yaml:"task"`
	Model               string   `yaml:"model"`
	UseVAD              bool     `yaml:"use_vad"`
	SendLastNSegments   int      `yaml:"send_last_n_segments"`
	NoSpeechThresh      float64  `yaml:"no_speech_thresh"`
	ClipAudio           bool     `yaml:"clip_audio"`
	SameOutputThreshold int      `yaml:"same_output_threshold"`
	EnableTranslation   bool     `yaml:"enable_translation"`
	TargetLanguage      string   `yaml:"target_language"`
	WaitQuietSeconds    float64  `yaml:"wait_quiet_seconds"`
}

// TTSConfig contains speech synthesis endpoint configuration
type TTSConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Voice    string `yaml:"voice"`
}

// PlaybackConfig contains audio output configuration
type PlaybackConfig struct {
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// CaptureConfig contains microphone capture configuration
type CaptureConfig struct {
	RecordingPath string `yaml:"recording_path"` // empty disables recording
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns a configuration usable without a config file, minus
// the recognition server list which has no sensible default.
func Default() *Config {
	return &Config{
		Transcription: TranscriptionConfig{
			Task:                "transcribe",
			Model:               "small",
			UseVAD:              true,
			SendLastNSegments:   10,
			NoSpeechThresh:      0.45,
			ClipAudio:           false,
			SameOutputThreshold: 10,
			WaitQuietSeconds:    15,
		},
		Playback: PlaybackConfig{
			FramesPerBuffer: 1024,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if len(t.Servers) == 0 {
		return fmt.Errorf("servers cannot be empty")
	}
	for i, server := range t.Servers {
		if server == "" {
			return fmt.Errorf("servers[%d] cannot be empty", i)
		}
	}

	validTasks := map[string]bool{"transcribe": true, "translate": true}
	if !validTasks[t.Task] {
		return fmt.Errorf("task must be 'transcribe' or 'translate', got '%s'", t.Task)
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.SendLastNSegments < 1 {
		return fmt.Errorf("send_last_n_segments must be at least 1, got %d", t.SendLastNSegments)
	}

	if t.NoSpeechThresh < 0 || t.NoSpeechThresh > 1 {
		return fmt.Errorf("no_speech_thresh must be between 0 and 1, got %f", t.NoSpeechThresh)
	}

	if t.SameOutputThreshold < 1 {
		return fmt.Errorf("same_output_threshold must be at least 1, got %d", t.SameOutputThreshold)
	}

	if t.EnableTranslation && t.TargetLanguage == "" {
		return fmt.Errorf("target_language cannot be empty when translation is enabled")
	}

	if t.WaitQuietSeconds <= 0 {
		return fmt.Errorf("wait_quiet_seconds must be positive, got %f", t.WaitQuietSeconds)
	}

	return nil
}

// Validate validates TTS configuration
func (t *TTSConfig) Validate() error {
	// The endpoint is only required in speak mode; main enforces that.
	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.FramesPerBuffer < 64 || p.FramesPerBuffer > 16384 {
		return fmt.Errorf("frames_per_buffer must be between 64 and 16384, got %d", p.FramesPerBuffer)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetWaitQuietDuration returns the wait-for-quiet threshold as a time.Duration
func (t *TranscriptionConfig) GetWaitQuietDuration() time.Duration {
	return time.Duration(t.WaitQuietSeconds * float64(time.Second))
}

// SessionConfig builds the session configuration for one recognition server
func (t *TranscriptionConfig) SessionConfig(server string) transcription.SessionConfig {
	return transcription.SessionConfig{
		ServerURL:           server,
		Language:            t.Language,
		Task:                t.Task,
		Model:               t.Model,
		UseVAD:              t.UseVAD,
		SendLastNSegments:   t.SendLastNSegments,
		NoSpeechThresh:      t.NoSpeechThresh,
		ClipAudio:           t.ClipAudio,
		SameOutputThreshold: t.SameOutputThreshold,
		EnableTranslation:   t.EnableTranslation,
		TargetLanguage:      t.TargetLanguage,
		WaitQuietThreshold:  t.GetWaitQuietDuration(),
	}
}

package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skypro1111/speech-stream-service/internal/protocol"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		expected string
	}{
		{"zero", 0, "00:00:00,000"},
		{"sub-second", 0.5, "00:00:00,500"},
		{"seconds and millis", 1.5, "00:00:01,500"},
		{"minutes", 65.25, "00:01:05,250"},
		{"hours", 3661.001, "01:01:01,001"},
		{"negative clamps to zero", -1.5, "00:00:00,000"},
		{"millis truncate", 2.9999, "00:00:02,999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTimestamp(tt.seconds); got != tt.expected {
				t.Errorf("formatTimestamp(%v) = %q, expected %q", tt.seconds, got, tt.expected)
			}
		})
	}
}

func TestFormatSRT(t *testing.T) {
	segments := []protocol.Segment{
		{Start: 0, End: 1.5, Text: "hi", Completed: true},
		{Start: 1.5, End: 3.25, Text: "there you are", Completed: true},
	}

	got := FormatSRT(segments)
	expected := "1\n00:00:00,000 --> 00:00:01,500\nhi\n\n" +
		"2\n00:00:01,500 --> 00:00:03,250\nthere you are\n\n"
	if got != expected {
		t.Errorf("FormatSRT output:\n%q\nexpected:\n%q", got, expected)
	}

	// Identical input produces identical bytes.
	if again := FormatSRT(segments); again != got {
		t.Error("FormatSRT is not deterministic")
	}
}

func TestFormatSRTEmpty(t *testing.T) {
	if got := FormatSRT(nil); got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
}

func TestWriteSRTNoBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	segments := []protocol.Segment{{Start: 0, End: 1, Text: "привіт"}}

	if err := WriteSRT(segments, path); err != nil {
		t.Fatalf("WriteSRT failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if strings.HasPrefix(string(data), "\uFEFF") {
		t.Error("Output starts with a BOM")
	}
	if !strings.Contains(string(data), "привіт") {
		t.Error("Output lost UTF-8 text")
	}
}

func TestWriteTranscripts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.srt")
	transcript := []protocol.Segment{{Start: 0, End: 1, Text: "hello"}}
	translated := []protocol.Segment{{Start: 0, End: 1, Text: "bonjour"}}

	if err := WriteTranscripts(transcript, translated, path); err != nil {
		t.Fatalf("WriteTranscripts failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Transcript file missing: %v", err)
	}
	translatedPath := filepath.Join(dir, "translated_session.srt")
	data, err := os.ReadFile(translatedPath)
	if err != nil {
		t.Fatalf("Translated file missing: %v", err)
	}
	if !strings.Contains(string(data), "bonjour") {
		t.Error("Translated file lost its text")
	}
}

func TestWriteTranscriptsSkipsEmptyTranslation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.srt")

	if err := WriteTranscripts([]protocol.Segment{{Text: "hello", End: 1}}, nil, path); err != nil {
		t.Fatalf("WriteTranscripts failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "translated_session.srt")); !os.IsNotExist(err) {
		t.Error("Translated file created for empty translation")
	}
}

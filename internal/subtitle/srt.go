package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skypro1111/speech-stream-service/internal/protocol"
)

// FormatSRT renders segments as SubRip text: 1-indexed blocks with a
// timing line, the segment text and a blank separator. Identical input
// always yields identical bytes.
func FormatSRT(segments []protocol.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatTimestamp(seg.Start),
			formatTimestamp(seg.End),
			seg.Text,
		)
	}
	return b.String()
}

// WriteSRT writes segments to path as UTF-8 SubRip, no BOM.
func WriteSRT(segments []protocol.Segment, path string) error {
	if err := os.WriteFile(path, []byte(FormatSRT(segments)), 0o644); err != nil {
		return fmt.Errorf("failed to write subtitle file: %w", err)
	}
	return nil
}

// WriteTranscripts writes the transcription to path and, when a
// translated transcript exists, the translation next to it under a
// "translated_" filename prefix.
func WriteTranscripts(transcript, translated []protocol.Segment, path string) error {
	if err := WriteSRT(transcript, path); err != nil {
		return err
	}
	if len(translated) > 0 {
		if err := WriteSRT(translated, TranslatedPath(path)); err != nil {
			return err
		}
	}
	return nil
}

// TranslatedPath returns path with its file name prefixed by
// "translated_".
func TranslatedPath(path string) string {
	return filepath.Join(filepath.Dir(path), "translated_"+filepath.Base(path))
}

// formatTimestamp renders seconds as HH:MM:SS,mmm. Sub-second precision
// truncates rather than rounds so a segment never appears to start
// after it did.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	millis := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		total/3600, (total%3600)/60, total%60, millis)
}

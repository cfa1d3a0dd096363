package subtitle

import (
	"fmt"
	"strings"

	"github.com/Syferie/BiliBili-Transcribe/transcribe"
)

// Timestamp renders seconds as an SRT time, HH:MM:SS,mmm. Fractions
// beyond millisecond precision are truncated, not rounded.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	totalMS := int64(seconds * 1000)
	ms := totalMS % 1000
	totalSec := totalMS / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60

	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatSRT renders segments as an SRT document: 1-based index, time
// range line, trimmed text, blank-line separated blocks. Output is
// deterministic for a given segment sequence.
func FormatSRT(segments []transcribe.Segment) string {
	blocks := make([]string, 0, len(segments))
	for i, seg := range segments {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s",
			i+1,
			Timestamp(seg.Start),
			Timestamp(seg.End),
			strings.TrimSpace(seg.Text)))
	}
	return strings.Join(blocks, "\n\n")
}

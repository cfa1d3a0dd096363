package subtitle

import (
	"strings"
	"testing"

	"github.com/Syferie/BiliBili-Transcribe/transcribe"
)

// TestTimestamp covers zero, sub-second, and multi-hour values plus
// millisecond truncation.
func TestTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{3.25, "00:00:03,250"},
		{59.9999, "00:00:59,999"}, // truncated, not rounded up
		{61, "00:01:01,000"},
		{3661.042, "01:01:01,042"},
		{-1, "00:00:00,000"},
	}

	for _, tc := range cases {
		if got := Timestamp(tc.seconds); got != tc.want {
			t.Fatalf("Timestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

// TestFormatSRT checks the documented two-segment rendering.
func TestFormatSRT(t *testing.T) {
	segments := []transcribe.Segment{
		{Start: 0.0, End: 1.5, Text: "a"},
		{Start: 1.5, End: 3.25, Text: "b"},
	}

	want := "1\n" +
		"00:00:00,000 --> 00:00:01,500\n" +
		"a\n" +
		"\n" +
		"2\n" +
		"00:00:01,500 --> 00:00:03,250\n" +
		"b"

	got := FormatSRT(segments)
	if got != want {
		t.Fatalf("FormatSRT =\n%q\nwant\n%q", got, want)
	}

	// Deterministic: identical input yields byte-identical output.
	if again := FormatSRT(segments); again != got {
		t.Fatal("FormatSRT is not deterministic")
	}
}

// TestFormatSRTTrimsText strips surrounding whitespace from each block.
func TestFormatSRTTrimsText(t *testing.T) {
	got := FormatSRT([]transcribe.Segment{{Start: 0, End: 1, Text: "  hello \n"}})
	if !strings.Contains(got, "\nhello") || strings.Contains(got, " hello") {
		t.Fatalf("text not trimmed: %q", got)
	}
}

// TestFormatSRTIndexSequence verifies indexes start at 1 with no gaps.
func TestFormatSRTIndexSequence(t *testing.T) {
	segments := make([]transcribe.Segment, 5)
	for i := range segments {
		segments[i] = transcribe.Segment{Start: float64(i), End: float64(i + 1), Text: "x"}
	}

	blocks := strings.Split(FormatSRT(segments), "\n\n")
	if len(blocks) != 5 {
		t.Fatalf("got %d blocks, want 5", len(blocks))
	}
	for i, block := range blocks {
		wantPrefix := []string{"1\n", "2\n", "3\n", "4\n", "5\n"}[i]
		if !strings.HasPrefix(block, wantPrefix) {
			t.Fatalf("block %d = %q, want prefix %q", i, block, wantPrefix)
		}
	}
}

// TestFormatSRTEmpty renders no stray blocks for an empty transcript.
func TestFormatSRTEmpty(t *testing.T) {
	if got := FormatSRT(nil); got != "" {
		t.Fatalf("FormatSRT(nil) = %q, want empty", got)
	}
}

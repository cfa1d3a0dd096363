package transcribe

import (
	"context"
	"errors"
	"fmt"
)

// Segment is one timed span of transcript text. Start and End are
// offsets in seconds with Start <= End; Text carries no surrounding
// whitespace. Segments are immutable once produced.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Options tunes decoding for a single transcription call.
type Options struct {
	// Language biases decoding toward one language.
	Language string

	// InitialPrompt is prepended to bias the decoder's vocabulary.
	InitialPrompt string

	// VADFilter enables voice-activity-detection filtering.
	VADFilter bool

	// MinSilenceMS is the minimum silence duration, in milliseconds,
	// the VAD treats as a segment boundary.
	MinSilenceMS int

	// DurationHint is the audio duration in seconds when the caller
	// knows it. Backends that return unsegmented text use it to span
	// their single pseudo-segment; zero means unknown.
	DurationHint float64
}

// DefaultOptions returns the service's standard Mandarin decoding setup.
func DefaultOptions() Options {
	return Options{
		Language:      "zh",
		InitialPrompt: "以下是普通话的句子。",
		VADFilter:     true,
		MinSilenceMS:  500,
	}
}

// Transcriber converts an audio file into ordered transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]Segment, error)
}

// ErrUnsupportedBackend is returned by Resolve for unknown backend names.
var ErrUnsupportedBackend = errors.New("unsupported transcriber backend")

// ErrConnectionExhausted is returned when the cloud-space backend fails
// every connection attempt at construction.
var ErrConnectionExhausted = errors.New("connection attempts exhausted")

// ConfigError reports missing or invalid backend configuration. It is
// fatal for that backend selection; no transcription is attempted.
type ConfigError struct {
	Backend string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error reports a failure during a transcribe call itself. The call
// fails; the backend instance stays usable.
type Error struct {
	Backend string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

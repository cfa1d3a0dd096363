package transcribe

import (
	"context"
	"log/slog"

	"github.com/Syferie/BiliBili-Transcribe/progress"
)

// ProgressSink receives status updates keyed by job.
type ProgressSink interface {
	Update(key, status, details string)
}

// Service drives one transcription job end to end: progress updates,
// backend resolution, and the transcribe call itself. It applies no
// retry policy; only the cloud-space backend retries, and only while
// connecting.
type Service struct {
	config   func() FactoryConfig
	sink     ProgressSink
	resolver func(name string, cfg FactoryConfig, opts Options) (Transcriber, error)
}

// NewService builds the orchestrator. The config function is consulted
// per job so hot-reloaded backend settings take effect without restart.
func NewService(config func() FactoryConfig, sink ProgressSink) *Service {
	return &Service{
		config:   config,
		sink:     sink,
		resolver: Resolve,
	}
}

// Run transcribes one audio file with the named backend, threading
// progress through the sink. Failures are recorded as "failed" with the
// error message and returned to the caller; an empty result is never
// silently substituted for an error.
func (s *Service) Run(ctx context.Context, jobKey, audioPath, backend string, opts Options) ([]Segment, error) {
	slog.Info("Starting transcription",
		"job", jobKey,
		"backend", backend,
		"file", audioPath)

	s.sink.Update(jobKey, progress.StatusTranscribing, "")

	transcriber, err := s.resolver(backend, s.config(), opts)
	if err != nil {
		slog.Error("Failed to resolve transcriber backend",
			"job", jobKey,
			"backend", backend,
			"error", err)
		s.sink.Update(jobKey, progress.StatusFailed, err.Error())
		return nil, err
	}

	segments, err := transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		slog.Error("Transcription failed",
			"job", jobKey,
			"backend", backend,
			"error", err)
		s.sink.Update(jobKey, progress.StatusFailed, err.Error())
		return nil, err
	}

	s.sink.Update(jobKey, progress.StatusDone, "")

	slog.Info("Transcription complete",
		"job", jobKey,
		"backend", backend,
		"segments", len(segments))

	return segments, nil
}

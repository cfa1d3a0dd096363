package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Syferie/BiliBili-Transcribe/progress"
)

// Code distinguishes policy rejections from transient failures so
// callers can tell them apart.
type Code string

const (
	CodeDownloadFailed   Code = "download_failed"
	CodeDurationExceeded Code = "duration_exceeded"
)

// Error is a typed acquisition failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result describes one successfully downloaded audio track.
type Result struct {
	ID        string
	Title     string
	AudioPath string
	Duration  float64 // seconds, as reported by the extractor
}

// ProgressSink receives status updates keyed by job.
type ProgressSink interface {
	Update(key, status, details string)
}

// Config holds fetcher settings. MaxDuration is a function so a config
// reload takes effect on the next fetch.
type Config struct {
	// Binary is the yt-dlp executable path.
	Binary string

	// WorkDir receives downloaded audio files.
	WorkDir string

	// CookiesPath is an optional Netscape cookies file for the site.
	CookiesPath string

	// MaxDuration returns the duration budget in seconds; zero or a
	// nil function disables the check.
	MaxDuration func() int
}

// Fetcher downloads the audio track for a video identifier via yt-dlp.
type Fetcher struct {
	config Config
	sink   ProgressSink
	runner commandRunner
}

// New creates a fetcher.
func New(cfg Config, sink ProgressSink) *Fetcher {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	return &Fetcher{
		config: cfg,
		sink:   sink,
		runner: runCommand,
	}
}

// videoMeta is the subset of the extractor's JSON document we need.
type videoMeta struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Fetch probes metadata first so the duration budget is enforced before
// any bytes are downloaded, then pulls the best audio track.
func (f *Fetcher) Fetch(ctx context.Context, bvID string) (Result, error) {
	url := "https://www.bilibili.com/video/" + bvID

	f.sink.Update(bvID, progress.StatusFetchingInfo, "")

	meta, err := f.probe(ctx, url)
	if err != nil {
		f.sink.Update(bvID, progress.StatusFailed, err.Error())
		return Result{}, err
	}

	if max := f.maxDuration(); max > 0 && meta.Duration > float64(max) {
		durErr := &Error{
			Code:    CodeDurationExceeded,
			Message: fmt.Sprintf("video duration (%.0fs) exceeds the allowed maximum (%ds)", meta.Duration, max),
		}
		f.sink.Update(bvID, progress.StatusFailed, durErr.Error())
		return Result{}, durErr
	}

	f.sink.Update(bvID, progress.StatusDownloading, "")

	audioPath, err := f.download(ctx, url)
	if err != nil {
		f.sink.Update(bvID, progress.StatusFailed, err.Error())
		return Result{}, err
	}

	f.sink.Update(bvID, progress.StatusDownloaded, "")

	slog.Info("Audio downloaded",
		"bvId", bvID,
		"title", meta.Title,
		"file", audioPath,
		"duration", meta.Duration)

	return Result{
		ID:        meta.ID,
		Title:     meta.Title,
		AudioPath: audioPath,
		Duration:  meta.Duration,
	}, nil
}

func (f *Fetcher) probe(ctx context.Context, url string) (videoMeta, error) {
	args := []string{"--dump-single-json", "--no-playlist", "--no-warnings"}
	args = f.appendCookies(args)
	args = append(args, url)

	out, err := f.runner(ctx, f.config.Binary, args...)
	if err != nil {
		return videoMeta{}, &Error{Code: CodeDownloadFailed, Message: "failed to fetch video metadata", Err: err}
	}

	var meta videoMeta
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		return videoMeta{}, &Error{Code: CodeDownloadFailed, Message: "failed to parse video metadata", Err: err}
	}
	return meta, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (string, error) {
	args := []string{
		"-f", "bestaudio/best",
		"-o", filepath.Join(f.config.WorkDir, "%(id)s.%(ext)s"),
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--no-simulate",
		"--print", "after_move:filepath",
	}
	args = f.appendCookies(args)
	args = append(args, url)

	out, err := f.runner(ctx, f.config.Binary, args...)
	if err != nil {
		return "", &Error{Code: CodeDownloadFailed, Message: "audio download failed", Err: err}
	}

	audioPath := lastLine(out)
	if audioPath == "" {
		return "", &Error{Code: CodeDownloadFailed, Message: "downloader reported no output file"}
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", &Error{Code: CodeDownloadFailed, Message: fmt.Sprintf("downloaded file missing: %s", audioPath), Err: err}
	}

	return audioPath, nil
}

func (f *Fetcher) appendCookies(args []string) []string {
	if f.config.CookiesPath != "" {
		return append(args, "--cookies", f.config.CookiesPath)
	}
	return args
}

func (f *Fetcher) maxDuration() int {
	if f.config.MaxDuration == nil {
		return 0
	}
	return f.config.MaxDuration()
}

// Cleanup removes a downloaded audio file. A file that is already gone
// is not an error.
func Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Audio file already removed", "file", path)
			return
		}
		slog.Error("Failed to remove audio file", "file", path, "error", err)
		return
	}
	slog.Info("Removed audio file", "file", path)
}

// commandRunner abstracts subprocess execution for testability.
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("%w: %s", err, detail)
		}
		return "", err
	}
	return stdout.String(), nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

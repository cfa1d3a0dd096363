package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LocalWhisper transcribes with a whisper.cpp binary and a pre-downloaded
// model. Construction validates the model path; a broken install fails
// fast instead of at the first request.
type LocalWhisper struct {
	binary    string
	modelFile string
	opts      Options

	runner    commandRunner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
	readFile  func(name string) ([]byte, error)
}

// NewLocalWhisper builds the local backend. modelPath must be a directory
// holding at least one .bin or .gguf model file.
func NewLocalWhisper(binary, modelPath string, opts Options) (*LocalWhisper, error) {
	w := &LocalWhisper{
		binary:    binary,
		opts:      opts,
		runner:    &execRunner{},
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		stat:      os.Stat,
		readFile:  os.ReadFile,
	}
	if w.binary == "" {
		w.binary = "whisper-cli"
	}

	modelFile, err := resolveModelFile(modelPath)
	if err != nil {
		return nil, &ConfigError{Backend: BackendLocalWhisper, Message: err.Error(), Err: err}
	}
	w.modelFile = modelFile

	slog.Info("Local whisper backend ready",
		"binary", w.binary,
		"model", w.modelFile)

	return w, nil
}

// Transcribe runs one whisper.cpp invocation and parses its JSON output
// into ascending-order segments.
func (w *LocalWhisper) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	if _, err := w.stat(audioPath); err != nil {
		return nil, &Error{Backend: BackendLocalWhisper, Message: fmt.Sprintf("audio file not found: %s", audioPath), Err: err}
	}

	tempDir, err := w.mkdirTemp("", "whisper-out-*")
	if err != nil {
		return nil, &Error{Backend: BackendLocalWhisper, Message: "failed to create output workspace", Err: err}
	}
	defer func() {
		if err := w.removeAll(tempDir); err != nil {
			slog.Warn("Failed to remove whisper workspace", "dir", tempDir, "error", err)
		}
	}()

	outBase := filepath.Join(tempDir, "transcript")
	args := w.buildArgs(audioPath, outBase)

	slog.Debug("Executing whisper command",
		"binary", w.binary,
		"args", args)

	result, err := w.runner.Run(ctx, w.binary, args...)
	if err != nil {
		slog.Debug("Whisper command failed",
			"stderr", result.Stderr,
			"exitCode", result.ExitCode)
		return nil, &Error{Backend: BackendLocalWhisper, Message: "whisper execution failed", Err: err}
	}

	data, err := w.readFile(outBase + ".json")
	if err != nil {
		return nil, &Error{Backend: BackendLocalWhisper, Message: "whisper completed but produced no JSON output", Err: err}
	}

	segments, err := parseWhisperJSON(data)
	if err != nil {
		return nil, &Error{Backend: BackendLocalWhisper, Message: "failed to parse whisper output", Err: err}
	}

	return segments, nil
}

func (w *LocalWhisper) buildArgs(audioPath, outBase string) []string {
	args := []string{
		"-m", w.modelFile,
		"-f", audioPath,
		"-oj",
		"-of", outBase,
	}

	if lang := strings.TrimSpace(w.opts.Language); lang != "" {
		args = append(args, "-l", lang)
	}
	if w.opts.InitialPrompt != "" {
		args = append(args, "--prompt", w.opts.InitialPrompt)
	}
	if w.opts.VADFilter {
		args = append(args, "--vad")
		if w.opts.MinSilenceMS > 0 {
			args = append(args, "--vad-min-silence-duration-ms", strconv.Itoa(w.opts.MinSilenceMS))
		}
	}

	return args
}

// whisperOutput mirrors the whisper.cpp -oj document. Offsets are
// milliseconds from the start of the audio.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseWhisperJSON(data []byte) ([]Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(out.Transcription))
	for _, entry := range out.Transcription {
		text := strings.TrimSpace(entry.Text)
		if text == "" || strings.Contains(text, "[BLANK_AUDIO]") {
			continue
		}
		segments = append(segments, Segment{
			Start: float64(entry.Offsets.From) / 1000,
			End:   float64(entry.Offsets.To) / 1000,
			Text:  text,
		})
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	return segments, nil
}

// resolveModelFile picks the first model file from a model directory.
func resolveModelFile(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

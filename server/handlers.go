package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Syferie/BiliBili-Transcribe/download"
	"github.com/Syferie/BiliBili-Transcribe/progress"
	"github.com/Syferie/BiliBili-Transcribe/subtitle"
	"github.com/Syferie/BiliBili-Transcribe/transcribe"
)

// bvPattern matches a BiliBili video identifier: "BV" plus exactly ten
// alphanumeric characters.
var bvPattern = regexp.MustCompile(`^BV[a-zA-Z0-9]{10}$`)

// utf8BOM prefixes exported subtitle files so Windows players detect
// the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

type transcribeRequest struct {
	BVID            string `json:"bvId"`
	TranscriberType string `json:"transcriber_type"`
}

type transcribeResponse struct {
	Transcript []transcribe.Segment `json:"transcript"`
	Title      string               `json:"title"`
	BVID       string               `json:"bvId"`
	Duration   float64              `json:"duration"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if !bvPattern.MatchString(req.BVID) {
		writeError(w, http.StatusBadRequest, "invalid_bv_id", "invalid BV id")
		return
	}
	backend := req.TranscriberType
	if backend == "" {
		backend = transcribe.BackendLocalWhisper
	}

	s.store.Update(req.BVID, progress.StatusQueued, "")

	result, err := s.fetcher.Fetch(r.Context(), req.BVID)
	if err != nil {
		s.writeDownloadError(w, err)
		return
	}
	// The audio file goes away whether or not transcription succeeds.
	defer download.Cleanup(result.AudioPath)

	opts := transcribe.DefaultOptions()
	opts.DurationHint = result.Duration

	segments, err := s.runner.Run(r.Context(), req.BVID, result.AudioPath, backend, opts)
	if err != nil {
		s.writeTranscribeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{
		Transcript: segments,
		Title:      result.Title,
		BVID:       req.BVID,
		Duration:   result.Duration,
	})
}

func (s *Server) writeDownloadError(w http.ResponseWriter, err error) {
	var dlErr *download.Error
	if errors.As(err, &dlErr) {
		writeError(w, http.StatusBadRequest, string(dlErr.Code), dlErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "audio acquisition failed")
}

func (s *Server) writeTranscribeError(w http.ResponseWriter, err error) {
	var cfgErr *transcribe.ConfigError
	switch {
	case errors.Is(err, transcribe.ErrUnsupportedBackend):
		writeError(w, http.StatusBadRequest, "unsupported_backend", err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, "backend_config", cfgErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "transcription_failed", fmt.Sprintf("transcription failed: %v", err))
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	bvID := r.URL.Query().Get("bvId")
	if !bvPattern.MatchString(bvID) {
		writeError(w, http.StatusBadRequest, "invalid_bv_id", "invalid BV id")
		return
	}

	rec, ok := s.store.Get(bvID)
	if !ok {
		writeError(w, http.StatusNotFound, "no_progress", "no progress information available")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type exportRequest struct {
	Transcript []transcribe.Segment `json:"transcript"`
	VideoTitle string               `json:"videoTitle"`
}

func (s *Server) handleExportSRT(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if len(req.Transcript) == 0 || req.VideoTitle == "" {
		writeError(w, http.StatusBadRequest, "missing_data", "transcript and videoTitle are required")
		return
	}

	content := subtitle.FormatSRT(req.Transcript)

	tempPath := filepath.Join(os.TempDir(), uuid.NewString()+".srt")
	data := append(append([]byte{}, utf8BOM...), content...)
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		slog.Error("Failed to write subtitle file", "error", err)
		writeError(w, http.StatusInternalServerError, "export_failed", "failed to generate SRT file")
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil {
			slog.Error("Failed to remove temporary subtitle file", "file", tempPath, "error", err)
		}
	}()

	filename := sanitizeFilename(req.VideoTitle) + ".srt"
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, tempPath)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"backends": map[string]bool{
			transcribe.BackendLocalWhisper: cfg.Backends.LocalEnabled,
			transcribe.BackendOpenAI:       cfg.Backends.OpenAIEnabled,
			transcribe.BackendCloudSpace:   cfg.Backends.CloudEnabled,
		},
	})
}

// sanitizeFilename strips path separators and control characters from a
// user-supplied title.
func sanitizeFilename(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '"':
			return '_'
		case r < 0x20:
			return -1
		default:
			return r
		}
	}, title)

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "transcript"
	}
	return cleaned
}

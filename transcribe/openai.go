package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// openAITimeout bounds one remote transcription call.
const openAITimeout = 300 * time.Second

// OpenAIWhisper sends audio to an OpenAI-compatible speech-to-text
// endpoint. The remote API returns unsegmented text, so the result is a
// single segment spanning the known audio duration.
type OpenAIWhisper struct {
	baseURL string
	apiKey  string
	model   string
	opts    Options
	client  *http.Client
}

// NewOpenAIWhisper builds the hosted-API backend. Both the base URL and
// the API key are required.
func NewOpenAIWhisper(baseURL, apiKey string, opts Options) (*OpenAIWhisper, error) {
	if baseURL == "" || apiKey == "" {
		return nil, &ConfigError{
			Backend: BackendOpenAI,
			Message: "OPENAI_API_BASE_URL and OPENAI_API_KEY must be set",
		}
	}

	return &OpenAIWhisper{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   "whisper-1",
		opts:    opts,
		client: &http.Client{
			Timeout: openAITimeout,
			// The API endpoint is reached directly even when the
			// process is configured with an HTTP proxy.
			Transport: &http.Transport{Proxy: nil},
		},
	}, nil
}

// Transcribe uploads the audio file and wraps the returned text in one
// pseudo-segment. End is the duration hint when known, else zero.
func (o *OpenAIWhisper) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: fmt.Sprintf("audio file not found: %s", audioPath), Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", o.model); err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "failed to build request", Err: err}
	}
	if err := mw.WriteField("response_format", "text"); err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "failed to build request", Err: err}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "failed to build request", Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "failed to read audio file", Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "failed to build request", Err: err}
	}

	url := o.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	slog.Debug("Sending transcription request",
		"backend", BackendOpenAI,
		"url", url,
		"file", filepath.Base(audioPath))

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "transcription request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Backend: BackendOpenAI, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{
			Backend: BackendOpenAI,
			Message: fmt.Sprintf("remote API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return []Segment{}, nil
	}

	return []Segment{{Start: 0, End: o.opts.DurationHint, Text: text}}, nil
}

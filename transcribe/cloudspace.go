package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	cloudConnectAttempts = 3
	cloudConnectBackoff  = 5 * time.Second
	cloudCallTimeout     = 300 * time.Second
)

// CloudSpace transcribes through a hosted inference space. Connecting to
// the space happens at construction, with a bounded number of attempts;
// the inference upload itself is a plain HTTP call.
//
// A configured proxy applies to the connection probe only. The inference
// client always dials directly, so process-wide proxy settings are never
// touched.
type CloudSpace struct {
	baseURL string
	opts    Options
	client  *http.Client

	sleep    func(time.Duration)
	attempts int
}

// NewCloudSpace connects to the named space ("owner/space" or a full
// URL), retrying up to 3 times with a fixed 5-second backoff.
func NewCloudSpace(space, proxyURL string, opts Options) (*CloudSpace, error) {
	c, err := newCloudSpace(space, opts)
	if err != nil {
		return nil, err
	}

	probe, err := probeClient(proxyURL)
	if err != nil {
		return nil, err
	}
	if err := c.connect(probe); err != nil {
		return nil, err
	}

	return c, nil
}

func newCloudSpace(space string, opts Options) (*CloudSpace, error) {
	baseURL, err := spaceURL(space)
	if err != nil {
		return nil, &ConfigError{Backend: BackendCloudSpace, Message: err.Error(), Err: err}
	}

	return &CloudSpace{
		baseURL: baseURL,
		opts:    opts,
		client: &http.Client{
			Timeout:   cloudCallTimeout,
			Transport: &http.Transport{Proxy: nil},
		},
		sleep:    time.Sleep,
		attempts: cloudConnectAttempts,
	}, nil
}

// probeClient builds the client used only for the connection probe.
func probeClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{Proxy: nil}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, &ConfigError{Backend: BackendCloudSpace, Message: fmt.Sprintf("invalid proxy URL: %s", proxyURL), Err: err}
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	return &http.Client{Timeout: 30 * time.Second, Transport: transport}, nil
}

// connect verifies the space is reachable, with fixed-delay retries.
func (c *CloudSpace) connect(probe *http.Client) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := probe.Get(c.baseURL + "/config")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				slog.Info("Connected to inference space",
					"space", c.baseURL,
					"attempt", attempt)
				return nil
			}
			err = fmt.Errorf("space returned HTTP %d", resp.StatusCode)
		}
		lastErr = err

		slog.Warn("Inference space connection attempt failed",
			"space", c.baseURL,
			"attempt", attempt,
			"error", err)

		if attempt < c.attempts {
			c.sleep(cloudConnectBackoff)
		}
	}

	return &ConfigError{
		Backend: BackendCloudSpace,
		Message: fmt.Sprintf("cannot reach inference space after %d attempts", c.attempts),
		Err:     fmt.Errorf("%w: %v", ErrConnectionExhausted, lastErr),
	}
}

// Transcribe uploads the audio plus decoding options and normalizes
// whatever result shape the space returns.
func (c *CloudSpace) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: fmt.Sprintf("audio file not found: %s", audioPath), Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"language":                strings.TrimSpace(c.opts.Language),
		"initial_prompt":          c.opts.InitialPrompt,
		"vad_filter":              strconv.FormatBool(c.opts.VADFilter),
		"min_silence_duration_ms": strconv.Itoa(c.opts.MinSilenceMS),
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, &Error{Backend: BackendCloudSpace, Message: "failed to build request", Err: err}
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "failed to build request", Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "failed to read audio file", Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "failed to build request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", &body)
	if err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "inference request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{
			Backend: BackendCloudSpace,
			Message: fmt.Sprintf("space returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	var wrapper struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "malformed response envelope", Err: err}
	}
	if len(wrapper.Data) == 0 {
		return nil, &Error{Backend: BackendCloudSpace, Message: "response carries no result"}
	}

	segments, err := normalizeResult(wrapper.Data[0])
	if err != nil {
		return nil, &Error{Backend: BackendCloudSpace, Message: "cannot parse transcription result", Err: err}
	}

	return segments, nil
}

// rawSegment uses pointers so missing fields are distinguishable from
// zero values.
type rawSegment struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Text  *string  `json:"text"`
}

// normalizeResult accepts the three shapes the space is known to return:
// a JSON-encoded string, a bare segment list, or an object with a nested
// "segments" field. Malformed segments are skipped, not fatal.
func normalizeResult(raw json.RawMessage) ([]Segment, error) {
	// Shape 1: the whole result double-encoded as a string.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return normalizeResult(json.RawMessage(encoded))
	}

	// Shape 2: a bare list of segments.
	var list []rawSegment
	if err := json.Unmarshal(raw, &list); err == nil {
		return collectSegments(list), nil
	}

	// Shape 3: an object wrapping the list.
	var nested struct {
		Segments []rawSegment `json:"segments"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Segments != nil {
		return collectSegments(nested.Segments), nil
	}

	return nil, fmt.Errorf("unexpected result shape: %s", firstBytes(raw, 120))
}

func collectSegments(raws []rawSegment) []Segment {
	segments := make([]Segment, 0, len(raws))
	for i, r := range raws {
		if r.Start == nil || r.End == nil || r.Text == nil {
			slog.Warn("Skipping malformed segment from inference space",
				"index", i,
				"hasStart", r.Start != nil,
				"hasEnd", r.End != nil,
				"hasText", r.Text != nil)
			continue
		}
		segments = append(segments, Segment{
			Start: *r.Start,
			End:   *r.End,
			Text:  strings.TrimSpace(*r.Text),
		})
	}
	return segments
}

// spaceURL maps "owner/space" to its hosted endpoint; full URLs pass
// through untouched.
func spaceURL(space string) (string, error) {
	space = strings.TrimSpace(space)
	if space == "" {
		return "", fmt.Errorf("inference space name is required")
	}
	if strings.Contains(space, "://") {
		return strings.TrimRight(space, "/"), nil
	}

	parts := strings.Split(space, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid space name: %s", space)
	}
	host := strings.ToLower(parts[0] + "-" + parts[1])
	host = strings.ReplaceAll(host, "_", "-")
	return "https://" + host + ".hf.space", nil
}

func firstBytes(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}

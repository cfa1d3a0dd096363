package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCloudSpace(t *testing.T, baseURL string) *CloudSpace {
	t.Helper()
	c, err := newCloudSpace(baseURL, DefaultOptions())
	if err != nil {
		t.Fatalf("construction: %v", err)
	}
	c.sleep = func(time.Duration) {}
	return c
}

// TestCloudSpaceConnectRetries verifies the fixed-attempt policy: two
// failures then success is fine, persistent failure exhausts.
func TestCloudSpaceConnectRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			http.Error(w, "warming up", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestCloudSpace(t, srv.URL)
	if err := c.connect(srv.Client()); err != nil {
		t.Fatalf("connect should succeed on the third attempt: %v", err)
	}
	if hits != 3 {
		t.Fatalf("probe hit %d times, want 3", hits)
	}
}

// TestCloudSpaceConnectExhausted checks the structured exhaustion error.
func TestCloudSpaceConnectExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCloudSpace(t, srv.URL)
	err := c.connect(srv.Client())
	if !errors.Is(err, ErrConnectionExhausted) {
		t.Fatalf("error = %v, want ErrConnectionExhausted", err)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type = %T, want *ConfigError", err)
	}
}

// TestSpaceURL maps space names to hosted endpoints.
func TestSpaceURL(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"magicsif/fasterwhisper", "https://magicsif-fasterwhisper.hf.space", false},
		{"Owner/My_Space", "https://owner-my-space.hf.space", false},
		{"http://localhost:7860/", "http://localhost:7860", false},
		{"", "", true},
		{"noslash", "", true},
		{"a/b/c", "", true},
	}

	for _, tc := range cases {
		got, err := spaceURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("spaceURL(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("spaceURL(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("spaceURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestNormalizeResultShapes covers the three result encodings the space
// is known to produce.
func TestNormalizeResultShapes(t *testing.T) {
	list := `[{"start": 0.0, "end": 1.5, "text": " a "}, {"start": 1.5, "end": 3.25, "text": "b"}]`
	want := []Segment{
		{Start: 0, End: 1.5, Text: "a"},
		{Start: 1.5, End: 3.25, Text: "b"},
	}

	cases := []struct {
		name string
		raw  string
	}{
		{"bare list", list},
		{"json-encoded string", fmt.Sprintf("%q", list)},
		{"nested object", `{"segments": ` + list + `}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segments, err := normalizeResult([]byte(tc.raw))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if len(segments) != len(want) {
				t.Fatalf("got %d segments, want %d", len(segments), len(want))
			}
			for i := range want {
				if segments[i] != want[i] {
					t.Fatalf("segment %d = %+v, want %+v", i, segments[i], want[i])
				}
			}
		})
	}
}

// TestNormalizeResultSkipsMalformedSegments drops incomplete entries
// without failing the call.
func TestNormalizeResultSkipsMalformedSegments(t *testing.T) {
	raw := `[
		{"start": 0.0, "end": 1.0, "text": "ok"},
		{"end": 2.0, "text": "missing start"},
		{"start": 2.0, "text": "missing end"},
		{"start": 3.0, "end": 4.0},
		{"start": 4.0, "end": 5.0, "text": "also ok"}
	]`

	segments, err := normalizeResult([]byte(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Text != "ok" || segments[1].Text != "also ok" {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

// TestNormalizeResultRejectsGarbage turns unparseable results into errors.
func TestNormalizeResultRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"not json at all"`, `42`, `{"other": 1}`} {
		if _, err := normalizeResult([]byte(raw)); err == nil {
			t.Fatalf("normalizeResult(%s) expected error", raw)
		}
	}
}

// TestCloudSpaceTranscribe runs the upload path against a fake space.
func TestCloudSpaceTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/predict" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "zh" {
			t.Errorf("language = %q", got)
		}
		if got := r.FormValue("vad_filter"); got != "true" {
			t.Errorf("vad_filter = %q", got)
		}
		if got := r.FormValue("min_silence_duration_ms"); got != "500" {
			t.Errorf("min_silence_duration_ms = %q", got)
		}
		fmt.Fprint(w, `{"data": [[{"start": 0, "end": 2.5, "text": "hello"}]]}`)
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "audio.m4a")
	if err := os.WriteFile(audio, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCloudSpace(t, srv.URL)
	segments, err := c.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "hello" {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadDefaults covers the no-file, no-env case.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.MaxVideoDuration != 3600 {
		t.Fatalf("maxVideoDuration = %d, want 3600", cfg.MaxVideoDuration)
	}
	if cfg.Addr != ":5000" {
		t.Fatalf("addr = %q, want :5000", cfg.Addr)
	}
	if !cfg.Backends.LocalEnabled || !cfg.Backends.OpenAIEnabled || !cfg.Backends.CloudEnabled {
		t.Fatalf("all backends should default to enabled: %+v", cfg.Backends)
	}
}

// TestLoadYAMLFile layers file values over defaults.
func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
addr: ":8080"
max_video_duration: 1800
backends:
  local_enabled: false
  model_path: /models/whisper
  cloud_space: someone/whisper-large
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.MaxVideoDuration != 1800 {
		t.Fatalf("maxVideoDuration = %d", cfg.MaxVideoDuration)
	}
	if cfg.Backends.LocalEnabled {
		t.Fatal("local backend should be disabled by file")
	}
	if cfg.Backends.ModelPath != "/models/whisper" {
		t.Fatalf("modelPath = %q", cfg.Backends.ModelPath)
	}
}

// TestLoadEnvOverrides verifies env wins over file and defaults.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAX_VIDEO_DURATION", "600")
	t.Setenv("ENABLE_OPENAI_WHISPER", "false")
	t.Setenv("ENABLE_CLOUD_FASTER_WHISPER", "TRUE")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("USE_PROXY", "true")
	t.Setenv("PROXY_URL", "http://127.0.0.1:7890")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxVideoDuration != 600 {
		t.Fatalf("maxVideoDuration = %d, want 600", cfg.MaxVideoDuration)
	}
	if cfg.Backends.OpenAIEnabled {
		t.Fatal("openai backend should be disabled by env")
	}
	if !cfg.Backends.CloudEnabled {
		t.Fatal("cloud backend should stay enabled (case-insensitive true)")
	}
	if cfg.Backends.OpenAIAPIKey != "sk-env" {
		t.Fatalf("apiKey = %q", cfg.Backends.OpenAIAPIKey)
	}

	fc := cfg.Factory()
	if fc.CloudProxyURL != "http://127.0.0.1:7890" {
		t.Fatalf("cloudProxyURL = %q, want proxy applied when USE_PROXY=true", fc.CloudProxyURL)
	}
}

// TestFactoryProxyScoping leaves the proxy empty unless UseProxy is set.
func TestFactoryProxyScoping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backends.UseProxy = false
	cfg.Backends.ProxyURL = "http://127.0.0.1:7890"

	if fc := cfg.Factory(); fc.CloudProxyURL != "" {
		t.Fatalf("cloudProxyURL = %q, want empty when proxy disabled", fc.CloudProxyURL)
	}
}

// TestHolderSwap checks concurrent-safe read-after-swap visibility.
func TestHolderSwap(t *testing.T) {
	h := NewHolder(DefaultConfig())

	cfg := h.Current()
	cfg.MaxVideoDuration = 60
	h.Swap(cfg)

	if got := h.Current().MaxVideoDuration; got != 60 {
		t.Fatalf("maxVideoDuration = %d, want 60", got)
	}
}

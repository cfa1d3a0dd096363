package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Syferie/BiliBili-Transcribe/transcribe"
)

// BackendsConfig enables and configures each transcriber variant.
type BackendsConfig struct {
	LocalEnabled bool   `yaml:"local_enabled"`
	WhisperBin   string `yaml:"whisper_bin"`
	ModelPath    string `yaml:"model_path"`

	OpenAIEnabled bool   `yaml:"openai_enabled"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`

	CloudEnabled bool   `yaml:"cloud_enabled"`
	CloudSpace   string `yaml:"cloud_space"`
	UseProxy     bool   `yaml:"use_proxy"`
	ProxyURL     string `yaml:"proxy_url"`
}

// RateLimitConfig bounds transcription request rate per client.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Config is the full service configuration.
type Config struct {
	Addr             string          `yaml:"addr"`
	WorkDir          string          `yaml:"work_dir"`
	LogLevel         string          `yaml:"log_level"`
	MaxVideoDuration int             `yaml:"max_video_duration"`
	YTDLPPath        string          `yaml:"ytdlp_path"`
	CookiesPath      string          `yaml:"cookies_path"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	Backends         BackendsConfig  `yaml:"backends"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Addr:             ":5000",
		WorkDir:          os.TempDir(),
		LogLevel:         "info",
		MaxVideoDuration: 3600,
		YTDLPPath:        "yt-dlp",
		RateLimit: RateLimitConfig{
			RPS:   1,
			Burst: 5,
		},
		Backends: BackendsConfig{
			LocalEnabled:  true,
			WhisperBin:    "whisper-cli",
			OpenAIEnabled: true,
			CloudEnabled:  true,
			CloudSpace:    "magicsif/fasterwhisper",
			ProxyURL:      "http://127.0.0.1:7890",
		},
	}
}

// Load layers configuration: defaults, then the YAML file when present,
// then environment variable overrides. A missing file is not an error;
// a malformed one is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv reads the environment variables the original deployment used.
func applyEnv(cfg *Config) {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setInt(&cfg.MaxVideoDuration, "MAX_VIDEO_DURATION")
	setString(&cfg.CookiesPath, "BILIBILI_COOKIES")

	setBool(&cfg.Backends.LocalEnabled, "ENABLE_LOCAL_FASTER_WHISPER")
	setString(&cfg.Backends.ModelPath, "FASTER_WHISPER_MODEL_PATH")

	setBool(&cfg.Backends.OpenAIEnabled, "ENABLE_OPENAI_WHISPER")
	setString(&cfg.Backends.OpenAIBaseURL, "OPENAI_API_BASE_URL")
	setString(&cfg.Backends.OpenAIAPIKey, "OPENAI_API_KEY")

	setBool(&cfg.Backends.CloudEnabled, "ENABLE_CLOUD_FASTER_WHISPER")
	setBool(&cfg.Backends.UseProxy, "USE_PROXY")
	setString(&cfg.Backends.ProxyURL, "PROXY_URL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = strings.EqualFold(strings.TrimSpace(v), "true")
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

// Factory converts backend settings into the transcriber factory's view.
func (c Config) Factory() transcribe.FactoryConfig {
	fc := transcribe.FactoryConfig{
		LocalEnabled:  c.Backends.LocalEnabled,
		WhisperBin:    c.Backends.WhisperBin,
		ModelPath:     c.Backends.ModelPath,
		OpenAIEnabled: c.Backends.OpenAIEnabled,
		OpenAIBaseURL: c.Backends.OpenAIBaseURL,
		OpenAIAPIKey:  c.Backends.OpenAIAPIKey,
		CloudEnabled:  c.Backends.CloudEnabled,
		CloudSpace:    c.Backends.CloudSpace,
	}
	if c.Backends.UseProxy {
		fc.CloudProxyURL = c.Backends.ProxyURL
	}
	return fc
}

// Holder is a concurrency-safe view of the current configuration. The
// watcher swaps in reloaded configs; request handlers read per call so
// reloadable settings (backend toggles, duration budget) apply without
// a restart.
type Holder struct {
	mu  sync.RWMutex
	cfg Config
}

// NewHolder wraps an initial configuration.
func NewHolder(cfg Config) *Holder {
	return &Holder{cfg: cfg}
}

// Current returns the configuration snapshot.
func (h *Holder) Current() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Swap replaces the configuration.
func (h *Holder) Swap(cfg Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

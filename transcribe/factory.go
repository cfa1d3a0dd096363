package transcribe

import "fmt"

// Backend names accepted by Resolve. The set is closed; adding a backend
// means adding a constructor case here.
const (
	BackendLocalWhisper = "faster_whisper"
	BackendOpenAI       = "openai"
	BackendCloudSpace   = "cloud_faster_whisper"
)

// FactoryConfig carries every per-backend setting plus enablement flags.
type FactoryConfig struct {
	LocalEnabled bool
	WhisperBin   string
	ModelPath    string

	OpenAIEnabled bool
	OpenAIBaseURL string
	OpenAIAPIKey  string

	CloudEnabled  bool
	CloudSpace    string
	CloudProxyURL string
}

// Resolve maps a backend name to a constructed Transcriber, validating
// required configuration first. Instance construction cost (model load,
// space connection) belongs to the backend constructors.
func Resolve(name string, cfg FactoryConfig, opts Options) (Transcriber, error) {
	switch name {
	case BackendLocalWhisper:
		if !cfg.LocalEnabled {
			return nil, &ConfigError{Backend: name, Message: "backend is disabled"}
		}
		return NewLocalWhisper(cfg.WhisperBin, cfg.ModelPath, opts)

	case BackendOpenAI:
		if !cfg.OpenAIEnabled {
			return nil, &ConfigError{Backend: name, Message: "backend is disabled"}
		}
		return NewOpenAIWhisper(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, opts)

	case BackendCloudSpace:
		if !cfg.CloudEnabled {
			return nil, &ConfigError{Backend: name, Message: "backend is disabled"}
		}
		return NewCloudSpace(cfg.CloudSpace, cfg.CloudProxyURL, opts)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
	}
}

package transcribe

import (
	"errors"
	"testing"
)

// TestResolveUnsupportedBackend checks unknown names construct nothing.
func TestResolveUnsupportedBackend(t *testing.T) {
	_, err := Resolve("unknown_backend", FactoryConfig{}, DefaultOptions())
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("error = %v, want ErrUnsupportedBackend", err)
	}
}

// TestResolveDisabledBackends rejects every disabled variant the same way.
func TestResolveDisabledBackends(t *testing.T) {
	for _, name := range []string{BackendLocalWhisper, BackendOpenAI, BackendCloudSpace} {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(name, FactoryConfig{}, DefaultOptions())
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
			if cfgErr.Backend != name {
				t.Fatalf("backend = %q, want %q", cfgErr.Backend, name)
			}
		})
	}
}

// TestResolveValidatesRequiredConfig exercises per-backend validation.
func TestResolveValidatesRequiredConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  FactoryConfig
		pick string
	}{
		{"local without model path", FactoryConfig{LocalEnabled: true}, BackendLocalWhisper},
		{"openai without key", FactoryConfig{OpenAIEnabled: true, OpenAIBaseURL: "https://api.example.com"}, BackendOpenAI},
		{"openai without base URL", FactoryConfig{OpenAIEnabled: true, OpenAIAPIKey: "sk-test"}, BackendOpenAI},
		{"cloud without space", FactoryConfig{CloudEnabled: true}, BackendCloudSpace},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.pick, tc.cfg, DefaultOptions())
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
		})
	}
}

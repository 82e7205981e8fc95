// Package config loads process-wide settings from an optional gateway.yaml
// file and MG_-prefixed environment variables. Environment variables win.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Models    ModelsConfig    `koanf:"models"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Recording RecordingConfig `koanf:"recording"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type AuthConfig struct {
	// ServiceKey is the bearer token clients authenticate with.
	ServiceKey string `koanf:"service_key"`
}

type ModelsConfig struct {
	// Path to the model registry YAML document.
	Path string `koanf:"path"`
}

// UpstreamConfig carries per-backend credentials and the environment-level
// defaults adapters fall back to when a model entry leaves a knob unset.
type UpstreamConfig struct {
	Responses   ResponsesConfig   `koanf:"responses"`
	Messages    MessagesConfig    `koanf:"messages"`
	Passthrough PassthroughConfig `koanf:"passthrough"`
}

type ResponsesConfig struct {
	APIKey     string `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`
	APIVersion string `koanf:"api_version"`
	Deployment string `koanf:"deployment"`

	// Fallbacks applied when a model entry omits the knob.
	SummaryLevel   string `koanf:"summary_level"`
	VerbosityLevel string `koanf:"verbosity_level"`
	Truncation     string `koanf:"truncation"`
}

type MessagesConfig struct {
	APIKey  string `koanf:"api_key"`
	Version string `koanf:"version"`
}

type PassthroughConfig struct {
	APIKey     string `koanf:"api_key"`
	APIVersion string `koanf:"api_version"`
}

type RecordingConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type LoggingConfig struct {
	// Completions enables console logging of reconstructed completion text.
	Completions bool `koanf:"completions"`
}

func Load() (*Config, error) {
	return LoadFile("gateway.yaml")
}

// LoadFile loads configuration from the given YAML file (missing file is
// fine) and then overlays MG_-prefixed environment variables, where double
// underscores separate nesting levels (MG_UPSTREAM__RESPONSES__API_KEY).
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("MG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MG_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Defaults
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("models.path") {
		k.Set("models.path", "models.yaml")
	}
	if !k.Exists("upstream.responses.api_version") {
		k.Set("upstream.responses.api_version", "2025-04-01-preview")
	}
	if !k.Exists("upstream.responses.summary_level") {
		k.Set("upstream.responses.summary_level", "detailed")
	}
	if !k.Exists("upstream.responses.verbosity_level") {
		k.Set("upstream.responses.verbosity_level", "medium")
	}
	if !k.Exists("upstream.responses.truncation") {
		k.Set("upstream.responses.truncation", "disabled")
	}
	if !k.Exists("upstream.messages.version") {
		k.Set("upstream.messages.version", "2023-06-01")
	}
	if !k.Exists("upstream.passthrough.api_version") {
		k.Set("upstream.passthrough.api_version", "2024-05-01-preview")
	}
	if !k.Exists("recording.path") {
		k.Set("recording.path", "./data/recordings.db")
	}
	if !k.Exists("logging.completions") {
		k.Set("logging.completions", true)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

package pricesource

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimit bounds how many requests a source accepts per window.
type RateLimit struct {
	Window   time.Duration `yaml:"window"`
	Requests int           `yaml:"requests"`
}

// RetryPolicy configures fetch retries for a source.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// SourceConfig describes one upstream pricing integration.
type SourceConfig struct {
	Name      string            `yaml:"name"`
	Endpoint  string            `yaml:"endpoint"`
	APIKey    string            `yaml:"api_key,omitempty"`
	APIKeyEnv string            `yaml:"api_key_env,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
	RateLimit RateLimit         `yaml:"rate_limit"`
	Retry     RetryPolicy       `yaml:"retry"`
}

// SourcesFile is the on-disk layout of sources.yaml.
type SourcesFile struct {
	Default string         `yaml:"default"`
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources reads a YAML sources file. API keys named by api_key_env are
// resolved from the environment.
func LoadSources(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}

	file, err := LoadSourcesFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("sources file %s: %w", path, err)
	}
	return file, nil
}

// LoadSourcesFromBytes parses and validates YAML sources data.
func LoadSourcesFromBytes(data []byte) (*SourcesFile, error) {
	var file SourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("no sources defined")
	}

	seen := make(map[string]bool, len(file.Sources))
	for i := range file.Sources {
		src := &file.Sources[i]
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: missing name", i+1)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("source %q defined twice", src.Name)
		}
		seen[src.Name] = true
		if src.APIKey == "" && src.APIKeyEnv != "" {
			src.APIKey = os.Getenv(src.APIKeyEnv)
		}
	}
	if file.Default == "" {
		file.Default = file.Sources[0].Name
	}
	if !seen[file.Default] {
		return nil, fmt.Errorf("default source %q is not defined", file.Default)
	}
	return &file, nil
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists known LLM session backend names.
// Used by [Validate] to warn about unrecognised names.
var ValidLLMProviders = []string{"openai", "anthropic"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found; soft issues that do
// not block startup are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	if cfg.LLM.Provider != "" && !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
		slog.Warn("unknown llm provider — may be a typo or third-party backend",
			"provider", cfg.LLM.Provider, "known", ValidLLMProviders)
	}
	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	}
	if fp := cfg.LLM.FallbackProvider; fp != "" {
		if fp == cfg.LLM.Provider {
			errs = append(errs, errors.New("llm.fallback_provider must differ from llm.provider"))
		} else if !slices.Contains(ValidLLMProviders, fp) {
			slog.Warn("unknown llm fallback provider — may be a typo or third-party backend",
				"provider", fp, "known", ValidLLMProviders)
		}
	}

	if cfg.Fillers.IndexPath == "" {
		slog.Warn("fillers.index_path is empty; HedgeEngine will fall back to its synthetic silent clip for every call")
	}

	errs = append(errs, cfg.validateAgents()...)
	errs = append(errs, cfg.validateProviders()...)
	errs = append(errs, cfg.validatePhoneNumbers()...)

	if len(cfg.Agents) == 0 {
		slog.Warn("no agents configured; /call/outbound will reject every request")
	}

	return errors.Join(errs...)
}

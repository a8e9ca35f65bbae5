package config_test

import (
	"strings"
	"testing"

	"github.com/voicecore/callcore/internal/config"
)

const minimalValidYAML = `
server:
  listen_addr: ":8080"
  log_level: info
llm:
  provider: openai
known_languages: [en, hi, hinglish]
agents:
  - id: agent-1
    name: Closer
    voice_profile:
      language_code: en
`

func TestLoadFromReader_MinimalValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalValidYAML))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].ID != "agent-1" {
		t.Fatalf("expected one agent agent-1, got: %+v", cfg.Agents)
	}
}

func TestValidate_MissingListenAddr(t *testing.T) {
	t.Parallel()
	yaml := `
llm:
  provider: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "listen_addr") {
		t.Fatalf("expected listen_addr error, got: %v", err)
	}
}

func TestValidate_MissingLLMProvider(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "llm.provider") {
		t.Fatalf("expected llm.provider error, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: verbose
llm:
  provider: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected log_level error, got: %v", err)
	}
}

func TestValidate_DuplicateAgentID(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
llm:
  provider: openai
known_languages: [en]
agents:
  - id: agent-1
    voice_profile: {language_code: en}
  - id: agent-1
    voice_profile: {language_code: en}
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "duplicates") {
		t.Fatalf("expected duplicate agent id error, got: %v", err)
	}
}

func TestValidate_UnknownLanguage(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
llm:
  provider: openai
known_languages: [en]
agents:
  - id: agent-1
    voice_profile: {language_code: klingon}
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "language") {
		t.Fatalf("expected unknown language error, got: %v", err)
	}
}

func TestValidate_InvalidProviderKind(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
llm:
  provider: openai
providers:
  - id: p1
    kind: carrier-pigeon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "kind") {
		t.Fatalf("expected invalid kind error, got: %v", err)
	}
}

func TestValidate_DuplicateAgentPerNumber(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
llm:
  provider: openai
known_languages: [en]
agents:
  - id: agent-1
    voice_profile: {language_code: en}
phone_numbers:
  - e164: "+15551230001"
    agent_id: agent-1
  - e164: "+15551230002"
    agent_id: agent-1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "already has") {
		t.Fatalf("expected duplicate agent-per-number error, got: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  bogus_field: true
llm:
  provider: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// Package config provides the configuration schema, loader, hot-reload
// watcher, and LLM-session provider registry for the call core.
package config

import (
	"fmt"

	"github.com/voicecore/callcore/pkg/model"
)

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration for the call core. Secrets
// (VOIP_ENCRYPTION_KEY, LLM_API_KEY, STORE_URL) are
// intentionally not YAML fields: they come from the process environment and
// are applied by cmd/callcore/main.go, so a configuration file can be
// committed to source control without leaking credentials.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	LLM          LLMConfig          `yaml:"llm"`
	Fillers      FillerConfig       `yaml:"fillers"`
	Intelligence IntelligenceConfig `yaml:"intelligence"`

	// KnownLanguages gates AgentConfig.Validate's voiceProfile.languageCode
	// check.
	KnownLanguages []string `yaml:"known_languages"`

	Agents       []AgentEntry       `yaml:"agents"`
	Providers    []ProviderEntry    `yaml:"providers"`
	PhoneNumbers []PhoneNumberEntry `yaml:"phone_numbers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the SignalingRouter listens on.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// PublicBaseURL is the https base used to build provider callback URLs
	// (overridden by $PUBLIC_BASE_URL at startup).
	PublicBaseURL string `yaml:"public_base_url"`

	// PublicWSBase is the wss base used in AnswerScript (overridden by
	// $PUBLIC_WS_BASE at startup).
	PublicWSBase string `yaml:"public_ws_base"`
}

// LLMConfig selects and configures the multimodal LLM session backend.
// Valid values for Provider: "openai", "anthropic".
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// FallbackProvider names a second backend to try when the primary
	// fails to open a session. Empty disables failover.
	FallbackProvider string `yaml:"fallback_provider"`
}

// FillerConfig points at the pre-recorded filler clip catalog HedgeEngine
// indexes at startup.
type FillerConfig struct {
	IndexPath    string `yaml:"index_path"`
	PreWarmCount int    `yaml:"pre_warm_count"`

	// AudioDir is the directory clip AudioPaths resolve against. Empty
	// disables filler audio playback (selection still runs).
	AudioDir string `yaml:"audio_dir"`

	// SemanticFallback enables the pgvector-backed nearest-transcript clip
	// lookup when no clip matches the exact metadata filter. Requires the
	// store database to have the vector extension available.
	SemanticFallback bool `yaml:"semantic_fallback"`

	// EmbeddingsModel selects the embeddings model for the semantic
	// fallback index. Empty uses the backend's default.
	EmbeddingsModel string `yaml:"embeddings_model"`
}

// IntelligenceConfig tunes the conversation analyzer.
type IntelligenceConfig struct {
	// KeywordsPath points at a YAML keyword-table override file
	// (intelligence.LoadKeywordTables). Empty keeps the built-in lists.
	KeywordsPath string `yaml:"keywords_path"`
}

// VoiceProfileEntry is the YAML shape of model.VoiceProfile.
type VoiceProfileEntry struct {
	VoiceID      string `yaml:"voice_id"`
	LanguageCode string `yaml:"language_code"`
}

// SpeechTuningEntry is the YAML shape of model.SpeechTuning.
type SpeechTuningEntry struct {
	VoiceSpeed              float64 `yaml:"voice_speed"`
	InterruptionSensitivity float64 `yaml:"interruption_sensitivity"`
	Responsiveness          float64 `yaml:"responsiveness"`
	Emotion                 float64 `yaml:"emotion"`
	BackgroundNoise         string  `yaml:"background_noise"`
}

// CallLimitsEntry is the YAML shape of model.CallLimits.
type CallLimitsEntry struct {
	MaxCallDurationSec int    `yaml:"max_call_duration_sec"`
	SilenceDetectionMs int    `yaml:"silence_detection_ms"`
	VoicemailDetection bool   `yaml:"voicemail_detection"`
	VoicemailAction    string `yaml:"voicemail_action"`
	VoicemailMessage   string `yaml:"voicemail_message"`
}

// AgentEntry is the YAML shape of model.AgentConfig.
type AgentEntry struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	Prompt          string            `yaml:"prompt"`
	WelcomeMessage  string            `yaml:"welcome_message"`
	Characteristics []string          `yaml:"characteristics"`
	VoiceProfile    VoiceProfileEntry `yaml:"voice_profile"`
	Speech          SpeechTuningEntry `yaml:"speech"`
	Limits          CallLimitsEntry   `yaml:"limits"`
	StartBehavior   string            `yaml:"start_behavior"`
	KnowledgeBase   []string          `yaml:"knowledge_base"`
}

// ToModel converts e to its runtime representation, clamping speech
// sliders per model.SpeechTuning.Clamp.
func (e AgentEntry) ToModel() model.AgentConfig {
	return model.AgentConfig{
		ID:              e.ID,
		Name:            e.Name,
		Prompt:          e.Prompt,
		WelcomeMessage:  e.WelcomeMessage,
		Characteristics: e.Characteristics,
		VoiceProfile: model.VoiceProfile{
			VoiceID:      e.VoiceProfile.VoiceID,
			LanguageCode: e.VoiceProfile.LanguageCode,
		},
		Speech: model.SpeechTuning{
			VoiceSpeed:              e.Speech.VoiceSpeed,
			InterruptionSensitivity: e.Speech.InterruptionSensitivity,
			Responsiveness:          e.Speech.Responsiveness,
			Emotion:                 e.Speech.Emotion,
			BackgroundNoise:         model.BackgroundNoise(e.Speech.BackgroundNoise),
		}.Clamp(),
		Limits: model.CallLimits{
			MaxCallDurationSec: e.Limits.MaxCallDurationSec,
			SilenceDetectionMs: e.Limits.SilenceDetectionMs,
			VoicemailDetection: e.Limits.VoicemailDetection,
			VoicemailAction:    model.VoicemailAction(e.Limits.VoicemailAction),
			VoicemailMessage:   e.Limits.VoicemailMessage,
		},
		StartBehavior: model.StartBehavior(e.StartBehavior),
		KnowledgeBase: e.KnowledgeBase,
	}
}

// ProviderEntry is the YAML shape of model.ProviderConfig. Credentials are
// stored as the vault's "hex(iv):hex(ct)" ciphertext per field — never
// plaintext — and are decrypted only inside providerdriver/registry.New.
type ProviderEntry struct {
	ID           string            `yaml:"id"`
	UserID       string            `yaml:"user_id"`
	Kind         string            `yaml:"kind"`
	Credentials  map[string]string `yaml:"credentials"`
	CustomScript string            `yaml:"custom_script"`
}

// ToModel converts e to its runtime representation.
func (e ProviderEntry) ToModel() model.ProviderConfig {
	return model.ProviderConfig{
		ID:           e.ID,
		UserID:       e.UserID,
		Kind:         model.ProviderKind(e.Kind),
		Credentials:  e.Credentials,
		CustomScript: e.CustomScript,
	}
}

// PhoneNumberEntry is the YAML shape of model.PhoneNumber.
type PhoneNumberEntry struct {
	E164       string `yaml:"e164"`
	ProviderID string `yaml:"provider_id"`
	AgentID    string `yaml:"agent_id"`
}

// ToModel converts e to its runtime representation.
func (e PhoneNumberEntry) ToModel() model.PhoneNumber {
	return model.PhoneNumber{E164: e.E164, ProviderID: e.ProviderID, AgentID: e.AgentID}
}

// AgentMap returns cfg.Agents indexed by ID, converted to model.AgentConfig.
func (c *Config) AgentMap() map[string]model.AgentConfig {
	m := make(map[string]model.AgentConfig, len(c.Agents))
	for _, a := range c.Agents {
		m[a.ID] = a.ToModel()
	}
	return m
}

// ProviderMap returns cfg.Providers indexed by ID, converted to
// model.ProviderConfig.
func (c *Config) ProviderMap() map[string]model.ProviderConfig {
	m := make(map[string]model.ProviderConfig, len(c.Providers))
	for _, p := range c.Providers {
		m[p.ID] = p.ToModel()
	}
	return m
}

// PhoneNumberByAgent returns the E.164 number assigned to agentID, if any.
// This is the read side of the "at most one active number per agent"
// invariant; the write side is enforced by validatePhoneNumbers when the
// config is loaded, not here.
func (c *Config) PhoneNumberByAgent(agentID string) (model.PhoneNumber, bool) {
	for _, p := range c.PhoneNumbers {
		if p.AgentID == agentID {
			return p.ToModel(), true
		}
	}
	return model.PhoneNumber{}, false
}

// knownLanguageSet builds the lookup map AgentConfig.Validate expects.
func (c *Config) knownLanguageSet() map[string]bool {
	m := make(map[string]bool, len(c.KnownLanguages))
	for _, l := range c.KnownLanguages {
		m[l] = true
	}
	return m
}

func (c *Config) validateAgents() []error {
	var errs []error
	known := c.knownLanguageSet()
	seen := make(map[string]int, len(c.Agents))
	for i, a := range c.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := seen[a.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q duplicates agents[%d]", prefix, a.ID, prev))
		}
		seen[a.ID] = i
		if err := a.ToModel().Validate(known); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}
	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error
	seen := make(map[string]int, len(c.Providers))
	for i, p := range c.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := seen[p.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q duplicates providers[%d]", prefix, p.ID, prev))
		}
		seen[p.ID] = i
		if !model.ProviderKind(p.Kind).IsValid() {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid", prefix, p.Kind))
		}
	}
	return errs
}

func (c *Config) validatePhoneNumbers() []error {
	var errs []error
	byAgent := make(map[string]int, len(c.PhoneNumbers))
	for i, n := range c.PhoneNumbers {
		prefix := fmt.Sprintf("phone_numbers[%d]", i)
		if n.E164 == "" {
			errs = append(errs, fmt.Errorf("%s.e164 is required", prefix))
		}
		if n.AgentID == "" {
			continue
		}
		if prev, ok := byAgent[n.AgentID]; ok {
			errs = append(errs, fmt.Errorf("%s: agent %q already has phone_numbers[%d]", prefix, n.AgentID, prev))
		}
		byAgent[n.AgentID] = i
	}
	return errs
}

package config

import "slices"

// ConfigDiff describes what changed between two configs. Only fields that
// are safe to hot-reload between calls are tracked — an AgentConfig is
// immutable for the lifetime of any call already in progress,
// so a reload only affects calls started after it lands.
type ConfigDiff struct {
	AgentsChanged   bool
	AgentChanges    []AgentDiff
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// AgentDiff describes what changed for a single agent between two configs.
type AgentDiff struct {
	ID                     string
	PromptChanged          bool
	CharacteristicsChanged bool
	SpeechChanged          bool
	LimitsChanged          bool
	Added                  bool
	Removed                bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldAgents := make(map[string]*AgentEntry, len(old.Agents))
	for i := range old.Agents {
		oldAgents[old.Agents[i].ID] = &old.Agents[i]
	}
	newAgents := make(map[string]*AgentEntry, len(new.Agents))
	for i := range new.Agents {
		newAgents[new.Agents[i].ID] = &new.Agents[i]
	}

	for id, oldAgent := range oldAgents {
		newAgent, exists := newAgents[id]
		if !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Removed: true})
			d.AgentsChanged = true
			continue
		}
		ad := diffAgent(id, oldAgent, newAgent)
		if ad.PromptChanged || ad.CharacteristicsChanged || ad.SpeechChanged || ad.LimitsChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
			d.AgentsChanged = true
		}
	}

	for id := range newAgents {
		if _, exists := oldAgents[id]; !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Added: true})
			d.AgentsChanged = true
		}
	}

	return d
}

// diffAgent compares two agent entries with the same ID.
func diffAgent(id string, old, new *AgentEntry) AgentDiff {
	ad := AgentDiff{ID: id}

	if old.Prompt != new.Prompt || old.WelcomeMessage != new.WelcomeMessage {
		ad.PromptChanged = true
	}
	if !slices.Equal(old.Characteristics, new.Characteristics) {
		ad.CharacteristicsChanged = true
	}
	if old.Speech != new.Speech {
		ad.SpeechChanged = true
	}
	if old.Limits != new.Limits {
		ad.LimitsChanged = true
	}

	return ad
}

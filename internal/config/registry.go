package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voicecore/callcore/internal/llmsession"
)

// ErrProviderNotRegistered is returned by CreateLLM when no factory has been
// registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: llm provider not registered")

// Registry maps an LLM backend name ("openai", "anthropic", ...) to its
// llmsession.Provider constructor. cmd/callcore registers the concrete
// backends at startup so this package stays free of any dependency on a
// specific backend implementation. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(LLMConfig) (llmsession.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]func(LLMConfig) (llmsession.Provider, error))}
}

// RegisterLLM registers an llmsession.Provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(LLMConfig) (llmsession.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateLLM instantiates the llmsession.Provider registered under cfg.Provider.
func (r *Registry) CreateLLM(cfg LLMConfig) (llmsession.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

package llmsession

import (
	"context"

	"github.com/voicecore/callcore/internal/resilience"
)

// FallbackProvider opens a session against an ordered group of backends:
// the primary first, then each registered fallback, stopping at the first
// successful Open. Once a session is open it stays on that backend for the
// life of the call; failover applies to session establishment only.
type FallbackProvider struct {
	group *resilience.FallbackGroup[Provider]
}

// NewFallbackProvider wraps primary with failover capacity. Add backends
// with AddFallback in preference order.
func NewFallbackProvider(primary Provider, primaryName string) *FallbackProvider {
	return &FallbackProvider{
		group: resilience.NewFallbackGroup(primary, primaryName, resilience.FallbackConfig{}),
	}
}

// AddFallback registers the next backend to try when the ones before it
// fail to open a session.
func (f *FallbackProvider) AddFallback(name string, p Provider) {
	f.group.AddFallback(name, p)
}

// Open implements Provider.
func (f *FallbackProvider) Open(ctx context.Context, systemInstruction string, voice VoiceConfig) (Session, error) {
	return resilience.ExecuteWithResult(f.group, func(p Provider) (Session, error) {
		return p.Open(ctx, systemInstruction, voice)
	})
}

var _ Provider = (*FallbackProvider)(nil)

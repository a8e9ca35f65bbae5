// Package registry wires the concrete ProviderDriver backends into
// providerdriver.New so that the providerdriver package itself stays free of
// any dependency on a specific carrier implementation.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/voicecore/callcore/internal/credentialvault"
	"github.com/voicecore/callcore/internal/providerdriver"
	"github.com/voicecore/callcore/internal/providerdriver/generic"
	"github.com/voicecore/callcore/internal/providerdriver/hosted"
	"github.com/voicecore/callcore/internal/providerdriver/tokenexchange"
	"github.com/voicecore/callcore/internal/resilience"
	"github.com/voicecore/callcore/pkg/model"
)

// New constructs the Driver for cfg.Kind, decrypting cfg.Credentials through
// vault first. The returned Driver's InitiateCall is guarded by a per-driver
// circuit breaker, so a carrier outage fails new dials fast instead of
// holding every caller through the full retry/timeout path.
func New(cfg model.ProviderConfig, vault *credentialvault.Vault) (providerdriver.Driver, error) {
	creds, err := vault.DecryptMap(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("providerdriver: decrypt credentials for %q: %w", cfg.ID, err)
	}

	var drv providerdriver.Driver
	switch cfg.Kind {
	case model.ProviderHosted:
		drv, err = hosted.New(creds)
	case model.ProviderTokenExchange:
		drv, err = tokenexchange.New(creds)
	case model.ProviderGeneric:
		drv, err = generic.New(creds, cfg.CustomScript)
	default:
		return nil, fmt.Errorf("providerdriver: unknown kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	return &breakerDriver{
		Driver: drv,
		cb:     resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "dial:" + cfg.ID}),
	}, nil
}

// breakerDriver guards InitiateCall with a circuit breaker. Only transient
// failures (network, timeout, rate limit) trip it; a caller-side mistake
// like a bad destination number says nothing about the carrier's health.
// The other Driver operations pass through untouched.
type breakerDriver struct {
	providerdriver.Driver
	cb *resilience.CircuitBreaker
}

func (d *breakerDriver) InitiateCall(ctx context.Context, to, from, mediaCallbackURL, statusCallbackURL string) (providerdriver.InitiateResult, error) {
	var res providerdriver.InitiateResult
	var callErr error

	err := d.cb.Execute(func() error {
		res, callErr = d.Driver.InitiateCall(ctx, to, from, mediaCallbackURL, statusCallbackURL)
		var perr *resilience.ProviderError
		if callErr != nil && errors.As(callErr, &perr) && !perr.IsTransient() {
			return nil
		}
		return callErr
	})

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return providerdriver.InitiateResult{}, &resilience.ProviderError{
			Class:   resilience.ErrClassNetworkError,
			Message: "carrier dial circuit open",
		}
	}
	if callErr != nil {
		return providerdriver.InitiateResult{}, callErr
	}
	return res, nil
}

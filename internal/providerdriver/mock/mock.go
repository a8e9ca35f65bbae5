// Package mock provides a test double for providerdriver.Driver.
package mock

import (
	"context"
	"sync"

	"github.com/voicecore/callcore/internal/providerdriver"
)

// InitiateCallCall records a single invocation of Driver.InitiateCall.
type InitiateCallCall struct {
	To, From, MediaCallbackURL, StatusCallbackURL string
}

// Driver is a scriptable stand-in for providerdriver.Driver.
type Driver struct {
	mu sync.Mutex

	InitiateResult providerdriver.InitiateResult
	InitiateErr    error
	StatusResult   providerdriver.StatusResult
	StatusErr      error
	EndCallResult  bool
	EndCallErr     error
	AnswerScriptResult []byte
	AnswerScriptErr    error
	ValidateOK     bool
	ValidateReason string

	InitiateCallCalls []InitiateCallCall
	GetStatusCalls    []string
	EndCallCalls      []string
}

func (d *Driver) InitiateCall(ctx context.Context, to, from, mediaCallbackURL, statusCallbackURL string) (providerdriver.InitiateResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InitiateCallCalls = append(d.InitiateCallCalls, InitiateCallCall{to, from, mediaCallbackURL, statusCallbackURL})
	return d.InitiateResult, d.InitiateErr
}

func (d *Driver) GetStatus(ctx context.Context, providerCallID string) (providerdriver.StatusResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.GetStatusCalls = append(d.GetStatusCalls, providerCallID)
	return d.StatusResult, d.StatusErr
}

func (d *Driver) EndCall(ctx context.Context, providerCallID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.EndCallCalls = append(d.EndCallCalls, providerCallID)
	return d.EndCallResult, d.EndCallErr
}

func (d *Driver) AnswerScript(callID, publicWsBase string) ([]byte, error) {
	return d.AnswerScriptResult, d.AnswerScriptErr
}

func (d *Driver) ValidateCredentials(ctx context.Context) (bool, string) {
	return d.ValidateOK, d.ValidateReason
}

var _ providerdriver.Driver = (*Driver)(nil)

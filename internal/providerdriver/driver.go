// Package providerdriver defines the carrier abstraction used to place and
// manage calls across hosted telephony platforms, token-exchange carriers,
// and arbitrary signed-HTTP carriers.
//
// Every Driver implementation is a thin adapter: it owns no call state of
// its own beyond what is needed to authenticate and talk to its backend.
// Call state lives in the CallStore; Driver only executes the carrier-side
// side effects (dial, status poll, hangup, answer script).
package providerdriver

import (
	"context"
	"time"
)

// CallStatus mirrors the carrier's view of a call, independent of this
// system's own model.CallStatus — a Driver reports what the carrier says,
// and the caller maps it onto model.CallStatus.
type CallStatus string

const (
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusFailed     CallStatus = "failed"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusBusy       CallStatus = "busy"
)

// InitiateResult is returned by Driver.InitiateCall.
type InitiateResult struct {
	ProviderCallID string
	InitialStatus  CallStatus
}

// StatusResult is returned by Driver.GetStatus.
type StatusResult struct {
	Status      CallStatus
	DurationSec int
	StartedAt   *time.Time
	EndedAt     *time.Time

	// AnsweredBy is the carrier's answering-machine-detection verdict, when
	// supported: "human", "machine", or "" if unknown/unsupported.
	AnsweredBy string
}

// Driver is the common contract every carrier adapter implements.
type Driver interface {
	// InitiateCall places an outbound call and returns the carrier's call
	// identifier and initial status.
	InitiateCall(ctx context.Context, to, from, mediaCallbackURL, statusCallbackURL string) (InitiateResult, error)

	// GetStatus polls the carrier for the current state of a call.
	GetStatus(ctx context.Context, providerCallID string) (StatusResult, error)

	// EndCall requests the carrier hang up a call. Returns false if the
	// carrier reports the call was already ended.
	EndCall(ctx context.Context, providerCallID string) (bool, error)

	// AnswerScript returns the carrier-specific payload instructing it to
	// open a media WebSocket at <publicWsBase>/media-stream/<callID> and
	// forward a callSid parameter.
	AnswerScript(callID, publicWsBase string) ([]byte, error)

	// ValidateCredentials verifies the driver's configured credentials
	// against the carrier, returning a human-readable reason on failure.
	ValidateCredentials(ctx context.Context) (ok bool, reason string)
}

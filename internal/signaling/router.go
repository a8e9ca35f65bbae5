// Package signaling implements the carrier-facing HTTP surface:
// starting an outbound call, carrier status/recording
// webhooks, and the AnswerScript callback that tells the carrier where to
// open its media WebSocket. The media WebSocket itself is served by
// internal/mediabridge; this package only hands mediabridge a PendingCall
// once a carrier dial has been accepted.
package signaling

import (
	"log/slog"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/voicecore/callcore/internal/callstore"
	"github.com/voicecore/callcore/internal/mediabridge"
	"github.com/voicecore/callcore/internal/observe"
	"github.com/voicecore/callcore/internal/providerdriver"
	"github.com/voicecore/callcore/pkg/model"
)

// maxConcurrentDials bounds in-flight outbound ProviderDriver.InitiateCall
// calls, the golang.org/x/sync/semaphore wiring.
const maxConcurrentDials = 32

// AgentLookup resolves an agent ID to its AgentConfig.
type AgentLookup func(agentID string) (model.AgentConfig, bool)

// PhoneNumberLookup resolves the PhoneNumber currently assigned to agentID.
type PhoneNumberLookup func(agentID string) (model.PhoneNumber, bool)

// ProviderLookup resolves a ProviderConfig by ID (for the driver kind and
// custom script; credentials are only ever touched inside Drivers).
type ProviderLookup func(providerID string) (model.ProviderConfig, bool)

// DriverLookup resolves the already-constructed providerdriver.Driver for a
// ProviderConfig ID. Drivers are built once at startup (or on config
// reload) since provider credentials are decrypted once per driver
// instance, not per call.
type DriverLookup func(providerID string) (providerdriver.Driver, bool)

// CallSignaler delivers carrier-webhook-sourced events to a call's attached
// state machine. Implemented by *mediabridge.Handler.
type CallSignaler interface {
	AnsweredByMachine(callID string)
}

// Deps supplies Router's dependencies.
type Deps struct {
	Store         callstore.Interface
	Agents        AgentLookup
	PhoneNumbers  PhoneNumberLookup
	Providers     ProviderLookup
	Drivers       DriverLookup
	Registry      mediabridge.Registry
	Signaler      CallSignaler
	Metrics       *observe.Metrics
	PublicBaseURL string
	PublicWSBase  string
}

// Router serves the signaling endpoints (excluding the media
// WebSocket upgrade itself, which is mediabridge.Handler's).
type Router struct {
	deps Deps
	sem  *semaphore.Weighted
}

// New constructs a Router from deps.
func New(deps Deps) *Router {
	return &Router{deps: deps, sem: semaphore.NewWeighted(maxConcurrentDials)}
}

// Register adds this router's routes to mux.
func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /call/outbound", rt.handleStartOutbound)
	mux.HandleFunc("POST /call-status", rt.handleCallStatus)
	mux.HandleFunc("POST /recording-status", rt.handleRecordingStatus)
	mux.HandleFunc("GET /media-callback/{callID}", rt.handleAnswerScript)
	mux.HandleFunc("POST /media-callback/{callID}", rt.handleAnswerScript)
}

func (rt *Router) logger() *slog.Logger { return slog.Default() }

package mediabridge

import (
	"sync"

	"github.com/voicecore/callcore/internal/providerdriver"
	"github.com/voicecore/callcore/pkg/model"
)

// PendingCall carries everything a media-stream attach needs to construct a
// callfsm.Machine for a call whose carrier dial is already in flight.
// internal/signaling registers one of these at StartCall time (or on
// inbound-call arrival); mediabridge consumes it exactly once, when the
// carrier opens the corresponding /media-stream/:callId socket.
type PendingCall struct {
	Call  model.Call
	Agent model.AgentConfig

	// Driver is used only by the voicemail transfer branch, which is
	// provider-specific. Optional.
	Driver providerdriver.Driver
}

// Registry resolves a media-stream connection's callID to its PendingCall,
// removing the entry on success since a media socket attaches at most once
// per call.
type Registry interface {
	TakePending(callID string) (PendingCall, bool)
	PutPending(callID string, pc PendingCall)
}

// MemRegistry is an in-process Registry backed by a guarded map. It is the
// registry internal/app wires by default; nothing here requires
// cross-process registration since exactly one process owns every call's
// media socket.
type MemRegistry struct {
	mu      sync.Mutex
	pending map[string]PendingCall
}

// NewMemRegistry returns an empty, ready-to-use MemRegistry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{pending: make(map[string]PendingCall)}
}

// PutPending registers pc under callID, to be consumed by the next attach.
func (r *MemRegistry) PutPending(callID string, pc PendingCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[callID] = pc
}

// TakePending returns and removes the PendingCall registered under callID,
// if any.
func (r *MemRegistry) TakePending(callID string) (PendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.pending[callID]
	if ok {
		delete(r.pending, callID)
	}
	return pc, ok
}

var _ Registry = (*MemRegistry)(nil)

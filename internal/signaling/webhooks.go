package signaling

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/voicecore/callcore/pkg/model"
)

// carrierStatusWebhook is the POST /call-status body. Field names follow
// the hosted-carrier convention (CallSid/CallStatus/AnsweredBy); the
// TokenExchange/Generic drivers' callback bodies are mapped onto the same
// shape upstream of this handler since every driver's statusCallbackURL
// points back at this one endpoint.
type carrierStatusWebhook struct {
	CallSid        string `json:"CallSid"`
	ProviderCallID string `json:"provider_call_id,omitempty"`
	CallStatus     string `json:"CallStatus"`
	AnsweredBy     string `json:"AnsweredBy,omitempty"`
}

var carrierStatusToModel = map[string]model.CallStatus{
	"queued":      model.CallDialing,
	"initiated":   model.CallDialing,
	"ringing":     model.CallRinging,
	"in-progress": model.CallInProgress,
	"answered":    model.CallAnswered,
	"completed":   model.CallCompleted,
	"failed":      model.CallFailed,
	"no-answer":   model.CallNoAnswer,
	"busy":        model.CallBusy,
}

// handleCallStatus handles the carrier's status callback. TransitionStatus
// is idempotent and monotonic (internal/callstore), so a re-delivered or
// out-of-order webhook is safely ignored rather than erroring.
func (rt *Router) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	var body carrierStatusWebhook
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rt.logger().Warn("signaling: unparseable call-status webhook", "err", err)
		w.WriteHeader(http.StatusOK) // unknown payloads are ignored, not errors
		return
	}

	callID := body.CallSid
	if callID == "" && body.ProviderCallID != "" {
		// TokenExchange/Generic carriers identify calls by their own ID.
		id, err := rt.deps.Store.GetCallByProviderCallID(r.Context(), body.ProviderCallID)
		if err != nil {
			rt.logger().Warn("signaling: unknown provider call id in webhook", "provider_call_id", body.ProviderCallID)
			w.WriteHeader(http.StatusOK)
			return
		}
		callID = id
	}
	if callID == "" {
		rt.logger().Warn("signaling: call-status webhook missing call identifier")
		w.WriteHeader(http.StatusOK)
		return
	}

	status, ok := carrierStatusToModel[body.CallStatus]
	if ok {
		if err := rt.deps.Store.TransitionStatus(r.Context(), callID, status, time.Now()); err != nil {
			rt.logger().Warn("signaling: transition status failed", "call_id", callID, "err", err)
		}
	} else {
		rt.logger().Info("signaling: unrecognized carrier status, ignoring", "status", body.CallStatus)
	}

	if body.AnsweredBy == "machine" && rt.deps.Signaler != nil {
		rt.deps.Signaler.AnsweredByMachine(callID)
	}

	w.WriteHeader(http.StatusOK)
}

type recordingStatusWebhook struct {
	CallSid      string `json:"CallSid"`
	RecordingURL string `json:"RecordingUrl"`
}

// handleRecordingStatus handles the carrier's recording-ready callback.
func (rt *Router) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	var body recordingStatusWebhook
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rt.logger().Warn("signaling: unparseable recording-status webhook", "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if body.CallSid == "" || body.RecordingURL == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := rt.deps.Store.AttachRecording(r.Context(), body.CallSid, body.RecordingURL); err != nil {
		rt.logger().Warn("signaling: attach recording failed", "call_id", body.CallSid, "err", err)
	}
	w.WriteHeader(http.StatusOK)
}

// handleAnswerScript serves the carrier's AnswerScript fetch: it resolves
// the call's driver from the call record and returns the carrier-specific
// payload telling it where to open its media WebSocket.
func (rt *Router) handleAnswerScript(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("callID")

	call, err := rt.deps.Store.GetCall(r.Context(), callID)
	if err != nil {
		http.Error(w, "unknown call", http.StatusNotFound)
		return
	}

	driver, ok := rt.deps.Drivers(call.ProviderID)
	if !ok {
		http.Error(w, "unknown provider", http.StatusInternalServerError)
		return
	}

	script, err := driver.AnswerScript(callID, rt.deps.PublicWSBase)
	if err != nil {
		rt.logger().Warn("signaling: answer script failed", "call_id", callID, "err", err)
		http.Error(w, "answer script failed", http.StatusInternalServerError)
		return
	}

	contentType := "application/json"
	if len(script) > 0 && script[0] == '<' {
		contentType = "application/xml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(script)
}

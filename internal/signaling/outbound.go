package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voicecore/callcore/internal/mediabridge"
	"github.com/voicecore/callcore/internal/observe"
	"github.com/voicecore/callcore/internal/providerdriver"
	"github.com/voicecore/callcore/internal/resilience"
	"github.com/voicecore/callcore/pkg/model"
)

// dialRetryBackoffs is the retry schedule for InitiateCall only: up to 2
// retries at 200ms, then 1s. Other driver operations never retry.
var dialRetryBackoffs = []time.Duration{200 * time.Millisecond, time.Second}

const providerDialTimeout = 8 * time.Second

type outboundCallRequest struct {
	AgentID string `json:"agentId"`
	ToPhone string `json:"toPhone"`
	LeadID  string `json:"leadId,omitempty"`
}

type outboundCallResponse struct {
	CallID         string `json:"callId"`
	ProviderCallID string `json:"providerCallId,omitempty"`
	Status         string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (rt *Router) handleStartOutbound(w http.ResponseWriter, r *http.Request) {
	var req outboundCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	if req.AgentID == "" || req.ToPhone == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "agentId and toPhone are required")
		return
	}

	to := normalizeAndValidate(req.ToPhone)
	if to == "" {
		writeError(w, http.StatusBadRequest, string(resilience.ErrClassInvalidTo), "toPhone does not resolve to a valid E.164 number")
		return
	}

	agent, ok := rt.deps.Agents(req.AgentID)
	if !ok {
		writeError(w, http.StatusNotFound, "UnknownAgent", req.AgentID)
		return
	}

	phone, ok := rt.deps.PhoneNumbers(req.AgentID)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "NoPhoneNumberAssigned", req.AgentID)
		return
	}
	from := normalizeAndValidate(phone.E164)
	if from == "" {
		writeError(w, http.StatusUnprocessableEntity, string(resilience.ErrClassInvalidFrom), phone.E164)
		return
	}

	driver, ok := rt.deps.Drivers(phone.ProviderID)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "UnknownProvider", phone.ProviderID)
		return
	}

	callID := uuid.NewString()
	call := model.Call{
		ID:         callID,
		AgentID:    agent.ID,
		ProviderID: phone.ProviderID,
		FromE164:   from,
		ToE164:     to,
		Direction:  model.Outbound,
		Status:     model.CallInit,
		StartedAt:  time.Now(),
	}

	if !rt.sem.TryAcquire(1) {
		writeError(w, http.StatusTooManyRequests, "TooManyConcurrentDials", "")
		return
	}
	defer rt.sem.Release(1)

	mediaCallbackURL := rt.deps.PublicBaseURL + "/media-callback/" + callID
	statusCallbackURL := rt.deps.PublicBaseURL + "/call-status"

	dialCtx, cancel := context.WithTimeout(r.Context(), providerDialTimeout)
	result, err := dialWithRetry(dialCtx, driver, to, from, mediaCallbackURL, statusCallbackURL, rt.deps.Metrics)
	cancel()

	if err != nil {
		call.Status = model.CallFailed
		_ = rt.deps.Store.CreateCall(r.Context(), call)

		var perr *resilience.ProviderError
		class := resilience.ErrClassUnknownProviderErr
		if errors.As(err, &perr) {
			class = perr.Class
		}
		status := http.StatusBadGateway
		if class == resilience.ErrClassAuthFailed {
			status = http.StatusUnauthorized
		}
		writeError(w, status, string(class), err.Error())
		return
	}

	call.Status = model.CallDialing
	call.ProviderCallID = result.ProviderCallID
	if err := rt.deps.Store.CreateCall(r.Context(), call); err != nil {
		rt.logger().Warn("signaling: create call failed", "call_id", callID, "err", err)
	}

	rt.deps.Registry.PutPending(callID, mediabridge.PendingCall{
		Call:   call,
		Agent:  agent,
		Driver: driver,
	})

	writeJSON(w, http.StatusOK, outboundCallResponse{
		CallID:         callID,
		ProviderCallID: result.ProviderCallID,
		Status:         string(result.InitialStatus),
	})
}

// dialWithRetry retries a transient InitiateCall failure:
// up to 2 retries with 200ms/1s backoff, for InitiateCall only.
func dialWithRetry(ctx context.Context, driver providerdriver.Driver, to, from, mediaCB, statusCB string, metrics *observe.Metrics) (providerdriver.InitiateResult, error) {
	var lastErr error
	for attempt := 0; attempt <= len(dialRetryBackoffs); attempt++ {
		result, err := driver.InitiateCall(ctx, to, from, mediaCB, statusCB)
		if err == nil {
			if metrics != nil {
				metrics.RecordProviderRequest(ctx, "", "InitiateCall", "ok")
			}
			return result, nil
		}
		lastErr = err

		var perr *resilience.ProviderError
		transient := errors.As(err, &perr) && perr.IsTransient()
		if metrics != nil {
			class := "UnknownProviderError"
			if perr != nil {
				class = string(perr.Class)
			}
			metrics.RecordProviderError(ctx, "", class)
		}
		if !transient || attempt == len(dialRetryBackoffs) {
			break
		}
		select {
		case <-time.After(dialRetryBackoffs[attempt]):
		case <-ctx.Done():
			return providerdriver.InitiateResult{}, ctx.Err()
		}
	}
	return providerdriver.InitiateResult{}, lastErr
}

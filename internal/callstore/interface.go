package callstore

import (
	"context"
	"time"

	"github.com/voicecore/callcore/pkg/model"
)

// Interface is the subset of *Store the call state machine and signaling
// router depend on, so tests can substitute callstore/mock.Store without a
// database.
type Interface interface {
	CreateCall(ctx context.Context, call model.Call) error
	TransitionStatus(ctx context.Context, callID string, newStatus model.CallStatus, at time.Time) error
	AppendTurn(ctx context.Context, callID string, turn model.Turn) error
	FinalizeCall(ctx context.Context, callID string, status model.CallStatus, outcome model.Outcome, endedAt time.Time, metrics model.CallMetrics) error
	AttachRecording(ctx context.Context, callID, recordingURL string) error
	GetCall(ctx context.Context, callID string) (model.Call, error)
	GetCallByProviderCallID(ctx context.Context, providerCallID string) (string, error)
}

var _ Interface = (*Store)(nil)

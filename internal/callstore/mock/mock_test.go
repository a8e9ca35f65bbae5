package mock

import (
	"context"
	"testing"
	"time"

	"github.com/voicecore/callcore/pkg/model"
)

func TestTransitionStatus_IgnoresOutOfOrderCallback(t *testing.T) {
	s := New()
	ctx := context.Background()
	call := model.Call{ID: "c1", Status: model.CallDialing, StartedAt: time.Now()}
	_ = s.CreateCall(ctx, call)

	_ = s.TransitionStatus(ctx, "c1", model.CallInProgress, time.Now())
	_ = s.TransitionStatus(ctx, "c1", model.CallRinging, time.Now()) // stale

	got, _ := s.GetCall(ctx, "c1")
	if got.Status != model.CallInProgress {
		t.Fatalf("status = %q, want %q (stale callback must be ignored)", got.Status, model.CallInProgress)
	}
}

func TestTransitionStatus_TerminalIsSticky(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateCall(ctx, model.Call{ID: "c1", Status: model.CallInProgress, StartedAt: time.Now()})

	_ = s.TransitionStatus(ctx, "c1", model.CallCompleted, time.Now())
	_ = s.TransitionStatus(ctx, "c1", model.CallFailed, time.Now())

	got, _ := s.GetCall(ctx, "c1")
	if got.Status != model.CallCompleted {
		t.Fatalf("status = %q, want %q (no transitions after terminal)", got.Status, model.CallCompleted)
	}
}

func TestAppendTurn_Idempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateCall(ctx, model.Call{ID: "c1", StartedAt: time.Now()})

	turn := model.Turn{TurnNumber: 1, UserText: "hello"}
	_ = s.AppendTurn(ctx, "c1", turn)
	_ = s.AppendTurn(ctx, "c1", model.Turn{TurnNumber: 1, UserText: "duplicate delivery"})

	got, _ := s.GetCall(ctx, "c1")
	if len(got.Transcript) != 1 {
		t.Fatalf("transcript length = %d, want 1", len(got.Transcript))
	}
	if got.Transcript[0].UserText != "hello" {
		t.Error("duplicate AppendTurn must not overwrite the first write")
	}
}

func TestAttachRecording_SetsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateCall(ctx, model.Call{ID: "c1", StartedAt: time.Now()})

	_ = s.AttachRecording(ctx, "c1", "https://example.com/rec1.wav")
	_ = s.AttachRecording(ctx, "c1", "https://example.com/rec2.wav")

	got, _ := s.GetCall(ctx, "c1")
	if got.RecordingURL != "https://example.com/rec1.wav" {
		t.Errorf("recording URL = %q, want the first-attached URL", got.RecordingURL)
	}
}

func TestGetCallByProviderCallID(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateCall(ctx, model.Call{ID: "c1", ProviderCallID: "PC-1", StartedAt: time.Now()})

	id, err := s.GetCallByProviderCallID(ctx, "PC-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "c1" {
		t.Errorf("id = %q, want c1", id)
	}
}

// Package mock provides an in-memory, call-recording test double for
// callstore.Interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voicecore/callcore/pkg/model"
)

// Store is a configurable, in-memory test double for callstore.Interface.
type Store struct {
	mu sync.Mutex

	calls []string

	Calls map[string]model.Call

	CreateCallErr       error
	TransitionStatusErr error
	AppendTurnErr       error
	FinalizeCallErr     error
	AttachRecordingErr  error
	GetCallErr          error
}

// New creates an empty Store.
func New() *Store {
	return &Store{Calls: make(map[string]model.Call)}
}

func (s *Store) record(method string) {
	s.calls = append(s.calls, method)
}

// CallCount returns how many times method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (s *Store) CreateCall(_ context.Context, call model.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateCall")
	if s.CreateCallErr != nil {
		return s.CreateCallErr
	}
	if _, exists := s.Calls[call.ID]; !exists {
		s.Calls[call.ID] = call
	}
	return nil
}

func (s *Store) TransitionStatus(_ context.Context, callID string, newStatus model.CallStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("TransitionStatus")
	if s.TransitionStatusErr != nil {
		return s.TransitionStatusErr
	}
	c, ok := s.Calls[callID]
	if !ok {
		return nil
	}
	if c.Status.IsTerminal() || newStatus.Precedes(c.Status) {
		return nil
	}
	c.Status = newStatus
	if newStatus == model.CallAnswered {
		t := at
		c.AnsweredAt = &t
	}
	if newStatus.IsTerminal() {
		t := at
		c.EndedAt = &t
	}
	s.Calls[callID] = c
	return nil
}

func (s *Store) AppendTurn(_ context.Context, callID string, turn model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AppendTurn")
	if s.AppendTurnErr != nil {
		return s.AppendTurnErr
	}
	c, ok := s.Calls[callID]
	if !ok {
		return nil
	}
	for _, existing := range c.Transcript {
		if existing.TurnNumber == turn.TurnNumber {
			return nil
		}
	}
	c.Transcript = append(c.Transcript, turn)
	s.Calls[callID] = c
	return nil
}

func (s *Store) FinalizeCall(_ context.Context, callID string, status model.CallStatus, outcome model.Outcome, endedAt time.Time, metrics model.CallMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FinalizeCall")
	if s.FinalizeCallErr != nil {
		return s.FinalizeCallErr
	}
	c, ok := s.Calls[callID]
	if !ok {
		return nil
	}
	if c.Status.IsTerminal() {
		return nil
	}
	c.Status = status
	c.Outcome = outcome
	t := endedAt
	c.EndedAt = &t
	c.DurationSec = int(endedAt.Sub(c.StartedAt).Seconds())
	c.Metrics = metrics
	s.Calls[callID] = c
	return nil
}

func (s *Store) AttachRecording(_ context.Context, callID, recordingURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AttachRecording")
	if s.AttachRecordingErr != nil {
		return s.AttachRecordingErr
	}
	c, ok := s.Calls[callID]
	if !ok || c.RecordingURL != "" {
		return nil
	}
	c.RecordingURL = recordingURL
	s.Calls[callID] = c
	return nil
}

func (s *Store) GetCall(_ context.Context, callID string) (model.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetCall")
	if s.GetCallErr != nil {
		return model.Call{}, s.GetCallErr
	}
	return s.Calls[callID], nil
}

func (s *Store) GetCallByProviderCallID(_ context.Context, providerCallID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetCallByProviderCallID")
	for id, c := range s.Calls {
		if c.ProviderCallID == providerCallID {
			return id, nil
		}
	}
	return "", nil
}

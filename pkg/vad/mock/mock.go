// Package mock provides test doubles for the vad package interfaces.
package mock

import (
	"sync"
	"time"

	"github.com/voicecore/callcore/pkg/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new default Session is
	// returned instead.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	NewSessionCalls []NewSessionCall
}

func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = nil
}

var _ vad.Engine = (*Engine)(nil)

// ProcessFrameCall records a single invocation of Session.ProcessFrame.
type ProcessFrameCall struct {
	PCM           []int16
	FrameDuration time.Duration
}

// Session is a mock implementation of vad.Session.
type Session struct {
	mu sync.Mutex

	// EventResult is returned by every ProcessFrame call unless Events is
	// set, in which case Events is consumed in order.
	EventResult vad.Event
	Events      []vad.Event

	ProcessFrameErr error
	CloseErr        error

	ProcessFrameCalls []ProcessFrameCall
	ResetCallCount    int
	CloseCallCount    int
}

func (s *Session) ProcessFrame(pcm []int16, frameDuration time.Duration) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{PCM: cp, FrameDuration: frameDuration})
	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}
	if len(s.Events) > 0 {
		ev := s.Events[0]
		s.Events = s.Events[1:]
		return ev, nil
	}
	return s.EventResult, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessFrameCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
}

var _ vad.Session = (*Session)(nil)

// Package mock provides in-memory, call-recording test doubles for
// llmsession.Provider and llmsession.Session.
package mock

import (
	"context"
	"sync"

	"github.com/voicecore/callcore/internal/llmsession"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Provider is a configurable test double for llmsession.Provider. Each call
// to Open returns the next entry of Sessions in sequence (or the last one
// repeated if the queue is exhausted, or a fresh Session if Sessions is
// empty), or OpenErr if non-nil.
type Provider struct {
	mu sync.Mutex

	calls []Call

	OpenErr   error
	Sessions  []*Session // consumed in order by Open
	openCount int
}

// NewProvider creates a Provider that will hand out sess from Open.
func NewProvider(sess ...*Session) *Provider {
	return &Provider{Sessions: sess}
}

func (p *Provider) record(method string, args ...any) {
	p.calls = append(p.calls, Call{Method: method, Args: args})
}

// CallCount returns how many times method was invoked.
func (p *Provider) CallCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (p *Provider) Open(ctx context.Context, systemInstruction string, voice llmsession.VoiceConfig) (llmsession.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Open", systemInstruction, voice)
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if len(p.Sessions) == 0 {
		return NewSession(), nil
	}
	idx := p.openCount
	if idx >= len(p.Sessions) {
		idx = len(p.Sessions) - 1
	}
	p.openCount++
	return p.Sessions[idx], nil
}

// Session is a configurable test double for llmsession.Session. Tests feed
// synthetic events by sending on Inject, and assert outbound calls via
// CallCount/SentAudio/SentText.
type Session struct {
	mu sync.Mutex

	calls []Call

	events chan llmsession.Event

	SendAudioErr             error
	SendTextErr              error
	UpdateSystemInstrErr     error
	CancelErr                error
	CloseErr                 error
	SentAudio                [][]byte
	SentText                 []string
	SystemInstructionUpdates []string
	CancelCount              int

	closed bool
}

// NewSession creates a Session with a buffered event channel a test can
// feed via Inject.
func NewSession() *Session {
	return &Session{events: make(chan llmsession.Event, 64)}
}

// Inject delivers evt to the session's Events() channel. Panics if called
// after Close.
func (s *Session) Inject(evt llmsession.Event) {
	s.events <- evt
}

func (s *Session) record(method string, args ...any) {
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// CallCount returns how many times method was invoked.
func (s *Session) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Session) SendAudio(ctx context.Context, pcm16 []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SendAudio", pcm16)
	s.SentAudio = append(s.SentAudio, pcm16)
	return s.SendAudioErr
}

func (s *Session) SendText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SendText", text)
	s.SentText = append(s.SentText, text)
	return s.SendTextErr
}

func (s *Session) UpdateSystemInstruction(ctx context.Context, instruction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateSystemInstruction", instruction)
	s.SystemInstructionUpdates = append(s.SystemInstructionUpdates, instruction)
	return s.UpdateSystemInstrErr
}

func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Cancel")
	s.CancelCount++
	return s.CancelErr
}

func (s *Session) Events() <-chan llmsession.Event { return s.events }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Close")
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return s.CloseErr
}

var (
	_ llmsession.Provider = (*Provider)(nil)
	_ llmsession.Session  = (*Session)(nil)
)

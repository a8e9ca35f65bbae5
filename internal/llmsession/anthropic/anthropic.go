// Package anthropic implements llmsession.Provider against the Claude
// Messages API. Claude has no native audio modality, so this backend treats
// SendAudio as a caller error: it is meant to pair with an external
// transcription stage feeding SendText, and its response stream carries only
// EventTranscriptPartial/EventResponseStart/EventResponseComplete (plus
// EventError when the stream fails) — no EventAudioChunk.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/voicecore/callcore/internal/llmsession"
)

var _ llmsession.Provider = (*Provider)(nil)
var _ llmsession.Session = (*session)(nil)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 1024
)

// ErrAudioUnsupported is returned by SendAudio: the Claude Messages API
// accepts text only.
var ErrAudioUnsupported = errors.New("llmsession/anthropic: backend accepts text input only")

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the Claude model used for new sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithMaxTokens overrides the per-response token ceiling.
func WithMaxTokens(n int64) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// WithBaseURL overrides the API base URL, used in tests to point at a local
// mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements llmsession.Provider against the Claude Messages API.
type Provider struct {
	apiKey    string
	model     string
	maxTokens int64
	baseURL   string
}

// New creates a Provider using apiKey for bearer authentication.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, maxTokens: defaultMaxTokens}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open establishes a new conversation seeded with systemInstruction. voice is
// accepted for interface symmetry with llmsession/openai but unused: Claude
// has no voice selection.
func (p *Provider) Open(ctx context.Context, systemInstruction string, voice llmsession.VoiceConfig) (llmsession.Session, error) {
	opts := []anthropicOption.RequestOption{anthropicOption.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		opts = append(opts, anthropicOption.WithBaseURL(p.baseURL))
	}

	sess := &session{
		client:       anthropicSDK.NewClient(opts...),
		model:        p.model,
		maxTokens:    p.maxTokens,
		system:       systemInstruction,
		events:       make(chan llmsession.Event, 32),
		generationMu: sync.Mutex{},
	}
	sess.ctx, sess.cancel = context.WithCancel(context.Background())

	return llmsession.WithDeadTimeout(sess, llmsession.DeadSessionTimeout), nil
}

type session struct {
	client    anthropicSDK.Client
	model     string
	maxTokens int64

	mu      sync.Mutex
	system  string
	history []anthropicSDK.MessageParam

	generationMu sync.Mutex // serializes concurrent SendText calls so one stream is in flight at a time

	events chan llmsession.Event

	closed    bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	ctx       context.Context

	activeStream *ssestream.Stream[anthropicSDK.MessageStreamEventUnion]
}

// SendAudio is unsupported: see package doc.
func (s *session) SendAudio(ctx context.Context, pcm16 []byte) error {
	return ErrAudioUnsupported
}

// SendText appends a user turn and streams the model's reply onto Events.
func (s *session) SendText(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("llmsession/anthropic: session closed")
	}
	s.history = append(s.history, anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(text)))
	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(s.model),
		MaxTokens: s.maxTokens,
		Messages:  s.history,
	}
	if s.system != "" {
		params.System = []anthropicSDK.TextBlockParam{{Text: s.system}}
	}
	s.mu.Unlock()

	s.generationMu.Lock()
	defer s.generationMu.Unlock()

	stream := s.client.Messages.NewStreaming(s.ctx, params)
	s.mu.Lock()
	s.activeStream = stream
	s.mu.Unlock()

	s.emit(llmsession.Event{Type: llmsession.EventResponseStart})

	var reply string
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				reply += event.Delta.Text
				s.emit(llmsession.Event{Type: llmsession.EventTranscriptPartial, Transcript: reply})
			}
		}
	}
	streamErr := stream.Err()
	stream.Close()

	s.mu.Lock()
	s.activeStream = nil
	if streamErr == nil && reply != "" {
		s.history = append(s.history, anthropicSDK.NewAssistantMessage(anthropicSDK.NewTextBlock(reply)))
	}
	s.mu.Unlock()

	if streamErr != nil {
		s.emit(llmsession.Event{Type: llmsession.EventError, Err: fmt.Errorf("llmsession/anthropic: stream: %w", streamErr)})
		return streamErr
	}

	s.emit(llmsession.Event{Type: llmsession.EventResponseComplete})
	return nil
}

// UpdateSystemInstruction replaces the system prompt used by subsequent
// SendText calls.
func (s *session) UpdateSystemInstruction(ctx context.Context, instruction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = instruction
	return nil
}

// Cancel closes the in-flight stream, if any, ending the current response
// early (barge-in).
func (s *session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	stream := s.activeStream
	s.mu.Unlock()
	if stream != nil {
		return stream.Close()
	}
	return nil
}

func (s *session) emit(evt llmsession.Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *session) Events() <-chan llmsession.Event { return s.events }

// Close terminates the session and releases its resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.activeStream
	s.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.events)
	})
	return nil
}

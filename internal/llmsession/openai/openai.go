// Package openai implements llmsession.Provider against OpenAI's Realtime
// API: a WebSocket dial, a session-update handshake, and a receive loop
// translating server events into llmsession.Event values.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voicecore/callcore/internal/llmsession"
)

var _ llmsession.Provider = (*Provider)(nil)
var _ llmsession.Session = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the realtime model used for new sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL, used in tests to point at a
// local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements llmsession.Provider against OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider using apiKey for bearer authentication.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open dials the Realtime WebSocket, configures the session with
// systemInstruction and voice, and wraps the result with the
// dead-session-timeout watchdog.
func (p *Provider) Open(ctx context.Context, systemInstruction string, voice llmsession.VoiceConfig) (llmsession.Session, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llmsession/openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan llmsession.Event, 64),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionUpdate(voice, systemInstruction); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("llmsession/openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return llmsession.WithDeadTimeout(sess, llmsession.DeadSessionTimeout), nil
}

// ── protocol message types (outgoing) ───────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string `json:"voice,omitempty"`
	Instructions      string `json:"instructions,omitempty"`
	InputAudioFormat  string `json:"input_audio_format"`
	OutputAudioFormat string `json:"output_audio_format"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ── protocol message types (incoming) ───────────────────────────────────────

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta /
	// conversation.item.input_audio_transcription.completed
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`

	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ──────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan llmsession.Event

	mu     sync.Mutex
	closed bool

	currentTxText string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) sendSessionUpdate(voice llmsession.VoiceConfig, instructions string) error {
	params := sessionParams{
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Instructions:      instructions,
	}
	if voice.VoiceID != "" {
		params.Voice = voice.VoiceID
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("llmsession/openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *session) receiveLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.emit(llmsession.Event{Type: llmsession.EventError, Err: fmt.Errorf("llmsession/openai: read: %w", err)})
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.handleServerEvent(&evt)
	}
}

func (s *session) emit(evt llmsession.Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.created":
		s.emit(llmsession.Event{Type: llmsession.EventResponseStart})

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audio) == 0 {
			return
		}
		s.emit(llmsession.Event{Type: llmsession.EventAudioChunk, Audio: audio})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.currentTxText += evt.Delta
		text := s.currentTxText
		s.mu.Unlock()
		s.emit(llmsession.Event{Type: llmsession.EventTranscriptPartial, Transcript: text})

	case "response.audio_transcript.done":
		s.mu.Lock()
		s.currentTxText = ""
		s.mu.Unlock()

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emit(llmsession.Event{Type: llmsession.EventTranscriptPartial, Transcript: evt.Transcript})

	case "response.done":
		s.emit(llmsession.Event{Type: llmsession.EventResponseComplete})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(llmsession.Event{Type: llmsession.EventError, Err: fmt.Errorf("llmsession/openai: %s", msg)})
	}
}

// SendAudio delivers a raw PCM16 chunk at 16 kHz to the model.
func (s *session) SendAudio(ctx context.Context, pcm16 []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("llmsession/openai: session closed")
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(pcm16)
	return s.writeJSON(appendAudioMessage{Type: "input_audio_buffer.append", Audio: encoded})
}

// SendText creates an assistant message item carrying text and asks the
// model to speak it verbatim, used for the welcome message and the
// voicemail leave-message path.
func (s *session) SendText(ctx context.Context, text string) error {
	if err := s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "assistant",
			Content: []conversationPart{
				{Type: "text", Text: text},
			},
		},
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// UpdateSystemInstruction replaces the session's instructions without
// disturbing in-progress audio.
func (s *session) UpdateSystemInstruction(ctx context.Context, instruction string) error {
	return s.writeJSON(sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Instructions:      instruction,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	})
}

// Cancel sends response.cancel to stop the model's in-progress response.
func (s *session) Cancel(ctx context.Context) error {
	return s.writeJSON(map[string]string{"type": "response.cancel"})
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
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

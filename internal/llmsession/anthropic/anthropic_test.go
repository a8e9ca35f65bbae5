package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voicecore/callcore/internal/llmsession"
)

func streamResponse(text string) string {
	var sb strings.Builder
	sb.WriteString("event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"type\":\"message\",\"role\":\"assistant\",\"content\":[],\"model\":\"claude-sonnet-4-5-20250929\",\"stop_reason\":null,\"stop_sequence\":null,\"usage\":{\"input_tokens\":10,\"output_tokens\":0}}}\n\n")
	sb.WriteString("event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n")
	for _, ch := range strings.Split(text, "") {
		sb.WriteString(fmt.Sprintf("event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", ch))
	}
	sb.WriteString("event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n")
	sb.WriteString("event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\",\"stop_sequence\":null},\"usage\":{\"output_tokens\":5}}\n\n")
	sb.WriteString("event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	return sb.String()
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", WithBaseURL(srv.URL))
}

func drainUntil(t *testing.T, events <-chan llmsession.Event, want llmsession.EventType) llmsession.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatalf("events channel closed before %v observed", want)
			}
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event type %v", want)
		}
	}
}

func TestSendText_StreamsTranscriptThenComplete(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, streamResponse("Hi"))
	})

	sess, err := p.Open(context.Background(), "Be concise.", llmsession.VoiceConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	go func() {
		if err := sess.SendText(context.Background(), "Hello"); err != nil {
			t.Errorf("SendText: %v", err)
		}
	}()

	start := drainUntil(t, sess.Events(), llmsession.EventResponseStart)
	if start.Type != llmsession.EventResponseStart {
		t.Fatalf("unexpected first event %v", start.Type)
	}

	var lastTranscript string
	for {
		evt := drainUntilEither(t, sess.Events(), llmsession.EventTranscriptPartial, llmsession.EventResponseComplete)
		if evt.Type == llmsession.EventResponseComplete {
			break
		}
		lastTranscript = evt.Transcript
	}
	if lastTranscript != "Hi" {
		t.Errorf("final transcript = %q; want %q", lastTranscript, "Hi")
	}
}

func drainUntilEither(t *testing.T, events <-chan llmsession.Event, a, b llmsession.EventType) llmsession.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatal("events channel closed unexpectedly")
			}
			if evt.Type == a || evt.Type == b {
				return evt
			}
		case <-deadline:
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestSendAudio_ReturnsUnsupported(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be contacted for SendAudio")
	})

	sess, err := p.Open(context.Background(), "", llmsession.VoiceConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio(context.Background(), []byte{1, 2, 3}); err != ErrAudioUnsupported {
		t.Errorf("err = %v; want ErrAudioUnsupported", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	sess, err := p.Open(context.Background(), "", llmsession.VoiceConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close(): %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close(): %v", err)
	}
}

func TestSendText_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	sess, err := p.Open(context.Background(), "", llmsession.VoiceConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = sess.Close()

	if err := sess.SendText(context.Background(), "hi"); err == nil {
		t.Fatal("SendText after Close should return an error")
	}
}

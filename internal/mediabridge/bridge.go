// Package mediabridge implements the carrier-facing media WebSocket
// endpoint: it demuxes the carrier's JSON signaling/media
// envelope, converts inbound µ-law frames to the LLM session's PCM rate and
// hands them to a per-call callfsm.Machine, and converts the Machine's
// outbound PCM16@24kHz audio back to 20 ms µ-law frames for the carrier,
// enforcing the drop-oldest/disconnect backpressure policy.
package mediabridge

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voicecore/callcore/internal/callfsm"
	"github.com/voicecore/callcore/internal/callstore"
	"github.com/voicecore/callcore/internal/intelligence"
	"github.com/voicecore/callcore/internal/latency"
	"github.com/voicecore/callcore/internal/llmsession"
	"github.com/voicecore/callcore/internal/observe"
	"github.com/voicecore/callcore/pkg/codec"
	"github.com/voicecore/callcore/pkg/model"
	"github.com/voicecore/callcore/pkg/vad"
)

const (
	// outboundFrameBytes is 20 ms of 8 kHz µ-law (160 bytes).
	outboundFrameBytes = 160

	// outboundQueueCap bounds the outbound frame queue at 500 ms
	// (outboundQueueCap * 20ms), the drop-oldest threshold.
	outboundQueueCap = 25

	// inboundQueueCap bounds the pre-VAD inbound buffer at 1 s, the
	// disconnect threshold.
	inboundQueueCap = 50

	inboundFrameDuration = 20 * time.Millisecond
)

// Deps supplies the shared, call-agnostic dependencies every attached
// call's callfsm.Machine is built from. LLM, VAD, and Hedge are safe for
// concurrent use across calls; the per-call Analyzer and PrincipleEngine
// (both stateful: sticky profile/language, principle recency) are
// constructed fresh on each attach.
type Deps struct {
	Registry Registry
	Store    callstore.Interface
	LLM      llmsession.Provider
	VAD      vad.Engine
	Hedge    *intelligence.HedgeEngine
	Fillers  callfsm.FillerSource
	Metrics  *observe.Metrics

	// NewAnalyzer builds the per-call conversation analyzer. Nil uses
	// intelligence.NewAnalyzer with the built-in keyword tables; set it to
	// carry operator-tuned tables into every call.
	NewAnalyzer func() *intelligence.Analyzer

	// OnEnded is invoked once per call after the Machine finalizes it,
	// e.g. to deliver a post-call webhook. Optional.
	OnEnded func(model.Call)
}

// Handler serves the /media-stream/:callId WebSocket upgrade endpoint.
type Handler struct {
	deps Deps

	mu       sync.Mutex
	attached map[string]*Bridge
}

// New constructs a Handler from deps.
func New(deps Deps) *Handler {
	return &Handler{deps: deps, attached: make(map[string]*Bridge)}
}

// AnsweredByMachine delivers the carrier's answering-machine-detection
// verdict to callID's attached call machine, if one is currently attached.
// Used by internal/signaling's carrier status webhook handler. Satisfies
// internal/signaling.CallSignaler.
func (h *Handler) AnsweredByMachine(callID string) {
	h.mu.Lock()
	b, ok := h.attached[callID]
	h.mu.Unlock()
	if ok {
		b.machine.AnsweredByMachine()
	}
}

// Register adds the media-stream route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /media-stream/{callID}", h.handleAttach)
}

func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("callID")
	logger := slog.With("call_id", callID)

	pc, ok := h.deps.Registry.TakePending(callID)
	if !ok {
		logger.Warn("mediabridge: media-stream attach with no pending call")
		http.Error(w, "unknown call", http.StatusNotFound)
		return
	}

	tracker, ctx := latency.New(r.Context(), callID)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("mediabridge: websocket accept failed", "err", err)
		return
	}
	tracker.Mark(latency.StageWSOpen)

	b := &Bridge{
		conn:     conn,
		callID:   callID,
		logger:   logger,
		outbound: make(chan []byte, outboundQueueCap),
		inbound:  make(chan []byte, inboundQueueCap),
		metrics:  h.deps.Metrics,
	}

	newAnalyzer := h.deps.NewAnalyzer
	if newAnalyzer == nil {
		newAnalyzer = func() *intelligence.Analyzer { return intelligence.NewAnalyzer() }
	}

	machine, err := callfsm.New(callfsm.Config{
		Call:       pc.Call,
		Agent:      pc.Agent,
		Store:      h.deps.Store,
		LLM:        h.deps.LLM,
		VAD:        h.deps.VAD,
		Analyzer:   newAnalyzer(),
		Principles: intelligence.NewPrincipleEngine(),
		Hedge:      h.deps.Hedge,
		Tracker:    tracker,
		AudioOut:   b,
		Driver:     pc.Driver,
		Fillers:    h.deps.Fillers,
		OnEnded:    h.deps.OnEnded,
	})
	if err != nil {
		logger.Warn("mediabridge: build call machine failed", "err", err)
		conn.Close(websocket.StatusInternalError, "setup failed")
		return
	}
	b.machine = machine

	if h.deps.Metrics != nil {
		h.deps.Metrics.ActiveCalls.Add(ctx, 1)
		defer h.deps.Metrics.ActiveCalls.Add(context.Background(), -1)
	}

	h.mu.Lock()
	h.attached[callID] = b
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.attached, callID)
		h.mu.Unlock()
	}()

	b.run(ctx)
}

// Bridge owns one carrier media-stream connection for the lifetime of a
// call: it attaches a callfsm.Machine, demuxes inbound control/media
// frames, and implements callfsm.AudioSink for the outbound leg.
type Bridge struct {
	conn    *websocket.Conn
	callID  string
	logger  *slog.Logger
	metrics *observe.Metrics

	machine *callfsm.Machine

	streamSidMu sync.Mutex
	streamSid   string

	outbound chan []byte // queued 160-byte (20ms) µ-law frames, drop-oldest on overflow
	seq      uint64

	inbound chan []byte // raw µ-law payloads pending VAD, disconnect on overflow
}

var _ callfsm.AudioSink = (*Bridge)(nil)

// run drives the Bridge until the carrier disconnects or the call ends:
// the machine's event loop, the outbound writer, and the inbound feeder run
// as three cooperating per-call workers (the fourth,
// the raw socket reader, blocks in this goroutine).
func (b *Bridge) run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); b.runMachine(runCtx) }()
	go func() { defer wg.Done(); b.writeLoop(runCtx) }()
	go func() { defer wg.Done(); b.feedLoop(runCtx) }()

	b.readLoop(runCtx, cancel)

	cancel()
	wg.Wait()
	b.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (b *Bridge) runMachine(ctx context.Context) {
	if err := b.machine.Run(ctx); err != nil && ctx.Err() == nil {
		b.logger.Warn("mediabridge: call machine exited with error", "err", err)
	}
}

func (b *Bridge) readLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		_, data, err := b.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Info("mediabridge: carrier socket closed", "err", err)
				b.machine.Hangup()
			}
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.logger.Warn("mediabridge: unparseable carrier frame, ignoring", "err", err)
			continue
		}

		switch env.Event {
		case "start":
			if env.Start != nil {
				b.streamSidMu.Lock()
				b.streamSid = env.Start.StreamSid
				b.streamSidMu.Unlock()
			}
			b.machine.SetupOK()
		case "media":
			if env.Media == nil || env.Media.Track != "inbound" {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(env.Media.Payload)
			if err != nil {
				b.logger.Warn("mediabridge: bad media payload encoding", "err", err)
				continue
			}
			select {
			case b.inbound <- payload:
			default:
				b.logger.Warn("mediabridge: inbound queue exceeded 1s, disconnecting")
				if b.metrics != nil {
					b.metrics.InboundDisconnects.Add(ctx, 1)
				}
				cancel()
				return
			}
		case "mark":
			if env.Mark != nil && env.Mark.Name == "agent-spoke" {
				b.machine.WelcomeFinished()
			}
		case "stop":
			b.machine.Hangup()
		default:
			b.logger.Info("mediabridge: unknown carrier event, ignoring", "event", env.Event)
		}
	}
}

// feedLoop decodes buffered carrier payloads to 16 kHz PCM and submits them
// to the call machine's VAD pipeline, keeping the socket-read path free of
// codec work so a slow VAD pass never stalls frame reads.
func (b *Bridge) feedLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.inbound:
			frame := codec.MuLawFrameToPCM(payload, 16000, codec.Frame{})
			b.machine.SubmitInbound(frame.PCM)
		}
	}
}

// SendAudio implements callfsm.AudioSink: it resamples pcm24k down to 8 kHz
// µ-law and splits it into 20 ms (160-byte) carrier frames, queuing each
// with the drop-oldest backpressure policy.
func (b *Bridge) SendAudio(pcm24k []byte) error {
	if len(pcm24k) == 0 {
		return nil
	}
	samples := bytesToInt16(pcm24k)
	muLaw := codec.PCMFrameToMuLaw(codec.Frame{PCM: samples, SampleRate: 24000})

	for off := 0; off < len(muLaw); off += outboundFrameBytes {
		end := off + outboundFrameBytes
		if end > len(muLaw) {
			end = len(muLaw)
		}
		b.enqueueOutbound(muLaw[off:end])
	}
	return nil
}

func (b *Bridge) enqueueOutbound(frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case b.outbound <- buf:
		return
	default:
	}

	// Queue full: drop the oldest frame and make room for this one,
	// the "drop-oldest over 500ms" policy.
	select {
	case <-b.outbound:
		if b.metrics != nil {
			b.metrics.OutboundFramesDropped.Add(context.Background(), 1)
		}
	default:
	}
	select {
	case b.outbound <- buf:
	default:
	}
}

func (b *Bridge) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(inboundFrameDuration)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-b.outbound:
			<-ticker.C
			if err := b.writeFrame(ctx, frame, time.Since(start)); err != nil {
				b.logger.Info("mediabridge: write failed, closing", "err", err)
				return
			}
		}
	}
}

func (b *Bridge) writeFrame(ctx context.Context, frame []byte, elapsed time.Duration) error {
	b.seq++
	env := outboundEnvelope{
		Event: "media",
		Media: &outboundMediaV{
			Track:          "outbound",
			Chunk:          strconv.FormatUint(b.seq, 10),
			Timestamp:      strconv.FormatInt(elapsed.Milliseconds(), 10),
			Payload:        base64.StdEncoding.EncodeToString(frame),
			SequenceNumber: strconv.FormatUint(b.seq, 10),
		},
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("mediabridge: marshal outbound frame: %w", err)
	}
	return b.conn.Write(ctx, websocket.MessageText, data)
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

package callfsm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicecore/callcore/internal/callstore"
	"github.com/voicecore/callcore/internal/intelligence"
	"github.com/voicecore/callcore/internal/latency"
	"github.com/voicecore/callcore/internal/llmsession"
	"github.com/voicecore/callcore/internal/providerdriver"
	"github.com/voicecore/callcore/pkg/model"
	"github.com/voicecore/callcore/pkg/vad"
)

// errLLMSessionClosed is posted to the event loop when the LLM session's
// event channel closes without the machine itself having asked for it (see
// endCall, which sets llmClosing first).
var errLLMSessionClosed = errors.New("callfsm: llm session closed unexpectedly")

// AudioSink is the outbound leg of the media bridge attached to a call. All
// audio handed to it is PCM16 mono at 24 kHz, matching llmsession.Event's
// audio chunks and the filler clip catalog's stored rate; resampling to the
// carrier's 8 kHz µ-law happens downstream in the media bridge.
type AudioSink interface {
	SendAudio(pcm24k []byte) error
}

// FillerSource loads a filler clip's audio bytes on demand. Clips are
// stored at 24 kHz PCM16 on disk and resampled on play, never cached per
// rate (see intelligence.HedgeEngine). A nil FillerSource disables filler
// playback; usedSet bookkeeping and metrics still apply.
type FillerSource interface {
	Load(clip model.FillerClip) ([]byte, error)
}

// Config supplies a Machine's dependencies. All fields except Driver,
// Fillers, and OnEnded are required.
type Config struct {
	Call  model.Call
	Agent model.AgentConfig

	Store      callstore.Interface
	LLM        llmsession.Provider
	VAD        vad.Engine
	Analyzer   *intelligence.Analyzer
	Principles *intelligence.PrincipleEngine
	Hedge      *intelligence.HedgeEngine
	Tracker    *latency.Tracker
	AudioOut   AudioSink

	// Driver is used only for the voicemail transfer branch, which is
	// provider-specific. Optional.
	Driver providerdriver.Driver

	// Fillers loads filler clip audio bytes. Optional.
	Fillers FillerSource

	// OnEnded is invoked once, synchronously, after the Call has been
	// finalized in the store. Used for post-call webhook delivery.
	OnEnded func(model.Call)
}

// Machine is the per-call orchestrator: a single event-loop over a merged
// channel of VAD, LLM, timer, and control events, driving model.Call
// through the callfsm.State table in fsm.go. Not safe for concurrent use
// beyond its own documented entry points (SubmitInbound, Hangup, SetupOK,
// SetupFailed, AnsweredByMachine), which may be called from any goroutine.
type Machine struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	events  chan fsmEvent
	inbound chan []int16
	stopped chan struct{}

	timerMu sync.Mutex
	timers  map[timerKind]*time.Timer

	mu                sync.Mutex
	state             State
	call              model.Call
	vadSession        vad.Session
	llmSession        llmsession.Session
	llmClosing        bool
	systemInstruction string

	usedFillers       map[string]bool
	currentPrinciple  intelligence.Principle
	currentAnalysis   intelligence.AnalysisResult
	lastUserText      string
	pendingUserText   strings.Builder
	pendingAgentText  strings.Builder
	currentFillerID   string
	fillerPlaying     bool
	fillerMissLogged  bool
	errorCount        int
}

// New validates cfg and constructs a Machine ready for Run. The Machine
// does not open its LLM session or create the Call row; Run does the
// former, and the caller (internal/app) does the latter before attaching
// a media bridge.
func New(cfg Config) (*Machine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("callfsm: Store is required")
	case cfg.LLM == nil:
		return nil, errors.New("callfsm: LLM is required")
	case cfg.VAD == nil:
		return nil, errors.New("callfsm: VAD is required")
	case cfg.Analyzer == nil:
		return nil, errors.New("callfsm: Analyzer is required")
	case cfg.Principles == nil:
		return nil, errors.New("callfsm: Principles is required")
	case cfg.Hedge == nil:
		return nil, errors.New("callfsm: Hedge is required")
	case cfg.Tracker == nil:
		return nil, errors.New("callfsm: Tracker is required")
	case cfg.AudioOut == nil:
		return nil, errors.New("callfsm: AudioOut is required")
	case cfg.Call.ID == "":
		return nil, errors.New("callfsm: Call.ID is required")
	}
	return &Machine{
		cfg:         cfg,
		state:       StateInit,
		call:        cfg.Call,
		events:      make(chan fsmEvent, 64),
		inbound:     make(chan []int16, 100),
		stopped:     make(chan struct{}),
		timers:      make(map[timerKind]*time.Timer),
		usedFillers: make(map[string]bool),
	}, nil
}

// ID returns the call ID this machine drives.
func (m *Machine) ID() string { return m.call.ID }

// State reports the machine's current callfsm.State.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the machine's current Call record.
func (m *Machine) Snapshot() model.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call
}

// SubmitInbound hands one decoded PCM16 frame (at the VAD's configured
// sample rate) to the machine's VAD worker. Non-blocking: a frame is
// dropped if the inbound queue is full, on the assumption that the media
// bridge enforces the 1 s inbound-lag disconnect policy upstream.
func (m *Machine) SubmitInbound(pcm []int16) {
	select {
	case m.inbound <- pcm:
	default:
		slog.Warn("callfsm: inbound queue full, dropping frame", "call_id", m.call.ID)
	}
}

// SetupOK signals that the media bridge has attached and the carrier's
// start frame has been received, advancing INIT to WELCOME.
func (m *Machine) SetupOK() {
	m.postEvent(fsmEvent{kind: evControl, control: controlSetupOK})
}

// SetupFailed signals that the media bridge failed to attach.
func (m *Machine) SetupFailed() {
	m.postEvent(fsmEvent{kind: evControl, control: controlSetupFailed})
}

// WelcomeFinished signals that carrier playback of the welcome message has
// completed, advancing WELCOME to LISTENING without waiting out the 5 s
// fallback timeout. Callers that cannot detect playback completion (e.g. a
// text-only welcome the LLM itself paces) may simply never call this and
// rely on the timer.
func (m *Machine) WelcomeFinished() {
	m.postEvent(fsmEvent{kind: evControl, control: controlWelcomeDone})
}

// Hangup requests an immediate, graceful end to the call.
func (m *Machine) Hangup() {
	m.postEvent(fsmEvent{kind: evControl, control: controlManualHangup})
}

// AnsweredByMachine signals that the carrier's answering-machine detection
// fired, triggering the voicemail branch if the agent has it enabled.
func (m *Machine) AnsweredByMachine() {
	m.postEvent(fsmEvent{kind: evControl, control: controlAnsweredByMachine})
}

// postEvent enqueues e for the event loop. Safe to call before Run starts
// (the events channel is buffered) and after it returns (stopped unblocks
// senders once the loop is gone).
func (m *Machine) postEvent(e fsmEvent) {
	select {
	case m.events <- e:
	case <-m.stopped:
	}
}

// Run drives the Machine to completion: it opens the LLM session, starts
// the VAD session, spawns the inbound-reader and LLM-consumer workers
// (the cooperating-workers model), and runs the event loop until
// the call reaches ENDED or ctx is canceled.
func (m *Machine) Run(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	defer m.cancel()
	defer close(m.stopped)

	voice := llmsession.VoiceConfig{
		VoiceID:      m.cfg.Agent.VoiceProfile.VoiceID,
		LanguageCode: m.cfg.Agent.VoiceProfile.LanguageCode,
	}
	m.systemInstruction = m.cfg.Agent.Prompt

	connectCtx, cancel := context.WithTimeout(m.ctx, llmConnectTimeout)
	sess, err := m.cfg.LLM.Open(connectCtx, m.systemInstruction, voice)
	cancel()
	if err != nil {
		m.finalize(model.CallFailed, model.OutcomeLLMUnavailable)
		return fmt.Errorf("callfsm: open llm session: %w", err)
	}
	m.llmSession = sess
	m.spawnLLMForwarder(sess)
	m.cfg.Tracker.Mark(latency.StageSessionReady)

	vadCfg := vad.DefaultConfig(16000)
	if ms := m.cfg.Agent.Limits.SilenceDetectionMs; ms > 0 {
		vadCfg.SilenceHangoverMs = ms
	}
	vadSess, err := m.cfg.VAD.NewSession(vadCfg)
	if err != nil {
		m.finalize(model.CallFailed, model.OutcomeLLMUnavailable)
		return fmt.Errorf("callfsm: open vad session: %w", err)
	}
	m.vadSession = vadSess

	if m.cfg.Agent.Limits.MaxCallDurationSec > 0 {
		m.arm(timerMaxDuration, time.Duration(m.cfg.Agent.Limits.MaxCallDurationSec)*time.Second)
	}
	m.arm(timerSetup, setupTimeout)

	eg, egCtx := errgroup.WithContext(m.ctx)
	eg.Go(func() error { return m.vadWorker(egCtx) })

	for {
		select {
		case <-m.ctx.Done():
			eg.Wait()
			return m.ctx.Err()
		case e := <-m.events:
			m.handleEvent(e)
			if m.State() == StateEnded {
				m.cancel()
				eg.Wait()
				return nil
			}
		}
	}
}

func (m *Machine) vadWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pcm := <-m.inbound:
			evt, err := m.vadSession.ProcessFrame(pcm, 20*time.Millisecond)
			if err != nil {
				slog.Warn("callfsm: vad frame error", "call_id", m.call.ID, "err", err)
				continue
			}
			var sig vadSignal
			switch evt.Type {
			case vad.SpeechStart:
				sig.speechStart = true
			case vad.AudioChunk:
				sig.audioChunk = true
				sig.pcm16 = int16ToBytes(pcm)
			case vad.SpeechEnd:
				sig.speechEnd = true
				sig.silenceDur = evt.SilenceDuration
			default:
				continue
			}
			m.postEvent(fsmEvent{kind: evVAD, vad: sig})
		}
	}
}

func (m *Machine) spawnLLMForwarder(sess llmsession.Session) {
	go func() {
		for evt := range sess.Events() {
			var sig llmSignal
			switch evt.Type {
			case llmsession.EventAudioChunk:
				sig.audioChunk = evt.Audio
			case llmsession.EventResponseStart:
				sig.responseStart = true
			case llmsession.EventResponseComplete:
				sig.responseComplete = true
			case llmsession.EventTranscriptPartial:
				sig.transcript = evt.Transcript
			case llmsession.EventError:
				sig.err = evt.Err
			}
			m.postEvent(fsmEvent{kind: evLLM, llm: sig})
		}
		m.mu.Lock()
		closing := m.llmClosing
		m.mu.Unlock()
		if !closing {
			m.postEvent(fsmEvent{kind: evLLM, llm: llmSignal{err: errLLMSessionClosed}})
		}
	}()
}

func int16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// handleEvent is the single dispatch point for the merged event channel.
// Global transitions (manual hangup, max duration, voicemail) are checked
// before the per-state switch in fsm.go's table.
func (m *Machine) handleEvent(e fsmEvent) {
	state := m.State()
	if state == StateCallEnding || state == StateEnded {
		return
	}

	switch {
	case e.kind == evControl && e.control == controlManualHangup:
		// A hangup (or media-socket drop) before the welcome completed
		// means the caller never heard the agent: that call failed.
		if state == StateInit || state == StateWelcome {
			m.endCall(model.CallFailed, model.OutcomeNone)
		} else {
			m.endCall(model.CallCompleted, model.OutcomeManualHangup)
		}
		return
	case e.kind == evTimer && e.timer == timerMaxDuration:
		m.endCall(model.CallCompleted, model.OutcomeMaxDuration)
		return
	case e.kind == evControl && e.control == controlAnsweredByMachine:
		m.handleVoicemail()
		return
	case e.kind == evLLM && e.llm.err != nil:
		m.handleLLMError(state, e.llm.err)
		return
	}

	switch state {
	case StateInit:
		m.handleInit(e)
	case StateWelcome:
		m.handleWelcome(e)
	case StateListening:
		m.handleListening(e)
	case StateHumanSpeaking:
		m.handleHumanSpeaking(e)
	case StateThinking:
		m.handleThinking(e)
	case StateResponding:
		m.handleResponding(e)
	case StateResponseComplete:
		m.handleResponseComplete(e)
	}
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Machine) handleInit(e fsmEvent) {
	switch {
	case e.kind == evControl && e.control == controlSetupOK:
		m.disarm(timerSetup)
		m.setState(StateWelcome)
		m.transitionCallStatus(model.CallInProgress)
		m.sendWelcome()
		m.arm(timerWelcome, welcomeTimeout)
	case e.kind == evControl && e.control == controlSetupFailed:
		m.endCall(model.CallFailed, model.OutcomeNone)
	case e.kind == evTimer && e.timer == timerSetup:
		m.endCall(model.CallFailed, model.OutcomeNone)
	}
}

func (m *Machine) sendWelcome() {
	if m.cfg.Agent.WelcomeMessage == "" {
		return
	}
	if err := m.llmSession.SendText(m.ctx, m.cfg.Agent.WelcomeMessage); err != nil {
		slog.Warn("callfsm: send welcome failed", "call_id", m.call.ID, "err", err)
	}
}

func (m *Machine) handleWelcome(e fsmEvent) {
	if (e.kind == evTimer && e.timer == timerWelcome) ||
		(e.kind == evControl && e.control == controlWelcomeDone) {
		m.disarm(timerWelcome)
		m.setState(StateListening)
	}
}

func (m *Machine) handleListening(e fsmEvent) {
	if e.kind != evVAD || !e.vad.speechStart {
		return
	}
	m.cfg.Tracker.Mark(latency.StageUserSpeechDetected)
	m.refreshSystemInstruction()
	m.setState(StateHumanSpeaking)
	m.arm(timerHumanSpeaking, humanSpeakingTimeout)
}

func (m *Machine) refreshSystemInstruction() {
	instr := buildSystemInstruction(m.cfg.Agent.Prompt, m.currentPrinciple, m.currentAnalysis)
	m.mu.Lock()
	m.systemInstruction = instr
	m.mu.Unlock()
	if err := m.llmSession.UpdateSystemInstruction(m.ctx, instr); err != nil {
		slog.Warn("callfsm: update system instruction failed", "call_id", m.call.ID, "err", err)
	}
}

func (m *Machine) handleHumanSpeaking(e fsmEvent) {
	switch {
	case e.kind == evVAD && e.vad.audioChunk:
		if err := m.llmSession.SendAudio(m.ctx, e.vad.pcm16); err != nil {
			slog.Warn("callfsm: send audio failed", "call_id", m.call.ID, "err", err)
		}
	case e.kind == evVAD && e.vad.speechEnd:
		m.disarm(timerHumanSpeaking)
		m.enterThinking()
	case e.kind == evLLM && e.llm.transcript != "":
		m.mu.Lock()
		m.pendingUserText.WriteString(e.llm.transcript)
		m.mu.Unlock()
	}
}

// enterThinking runs the analyzer and principle selection over whatever
// transcript has accumulated by SpeechEnd, rather than waiting for a
// final transcript that may still be streaming in.
func (m *Machine) enterThinking() {
	m.mu.Lock()
	text := m.pendingUserText.String()
	m.pendingUserText.Reset()
	m.mu.Unlock()

	prior := intelligence.TurnInput{Text: m.lastUserText}
	result := m.cfg.Analyzer.Analyze(text, prior)
	principle := m.cfg.Principles.Select(result.Stage, result.Profile, result.Objections)

	m.mu.Lock()
	m.currentAnalysis = result
	m.currentPrinciple = principle
	m.lastUserText = text
	m.mu.Unlock()

	m.setState(StateThinking)
	m.arm(timerThinking, thinkingTimeout)

	if m.cfg.Agent.Speech.Responsiveness < 0.8 {
		m.arm(timerFillerGrace, fillerGrace)
	}
}

func (m *Machine) handleThinking(e fsmEvent) {
	switch {
	case e.kind == evTimer && e.timer == timerFillerGrace:
		m.startFiller()
	case e.kind == evLLM && e.llm.responseStart:
		m.disarm(timerThinking)
		m.disarm(timerFillerGrace)
		m.stopFiller()
		m.cfg.Tracker.Mark(latency.StageResponseStart)
		m.setState(StateResponding)
		m.arm(timerResponding, respondingTimeout)
	case e.kind == evTimer && e.timer == timerThinking:
		m.disarm(timerFillerGrace)
		m.stopFiller()
		m.mu.Lock()
		m.errorCount++
		n := m.errorCount
		m.mu.Unlock()
		slog.Warn("callfsm: thinking timeout", "call_id", m.call.ID, "error_count", n)
		m.setState(StateListening)
	}
}

func (m *Machine) startFiller() {
	m.mu.Lock()
	language := m.currentAnalysis.Language
	principle := m.currentPrinciple
	profile := m.currentAnalysis.Profile
	userText := m.lastUserText
	used := make(map[string]bool, len(m.usedFillers))
	for k, v := range m.usedFillers {
		used[k] = v
	}
	m.mu.Unlock()

	clip, ok := m.cfg.Hedge.SelectFillerContext(m.ctx, userText, language, principle, profile, used)
	if !ok {
		m.mu.Lock()
		logged := m.fillerMissLogged
		m.fillerMissLogged = true
		m.mu.Unlock()
		if !logged {
			slog.Info("callfsm: no filler clips loaded", "call_id", m.call.ID)
		}
		return
	}

	m.mu.Lock()
	m.usedFillers[clip.ID] = true
	m.currentFillerID = clip.ID
	m.call.Metrics.FillersPlayed++
	m.fillerPlaying = true
	m.mu.Unlock()

	if m.cfg.Fillers == nil {
		return
	}
	audio, err := m.cfg.Fillers.Load(clip)
	if err != nil {
		slog.Warn("callfsm: load filler clip failed", "call_id", m.call.ID, "clip_id", clip.ID, "err", err)
		return
	}
	m.cfg.Tracker.Mark(latency.StageFirstOutboundAudio)
	if err := m.cfg.AudioOut.SendAudio(audio); err != nil {
		slog.Warn("callfsm: send filler audio failed", "call_id", m.call.ID, "err", err)
	}
}

func (m *Machine) stopFiller() {
	m.mu.Lock()
	m.fillerPlaying = false
	m.mu.Unlock()
}

func (m *Machine) handleResponding(e fsmEvent) {
	if e.kind == evVAD {
		m.handleBargeIn(e.vad)
		return
	}
	if e.kind == evTimer {
		switch e.timer {
		case timerInterruptionDebounce:
			m.doInterrupt()
		case timerResponding:
			m.finishResponse()
		}
		return
	}
	if e.kind != evLLM {
		return
	}
	switch {
	case e.llm.audioChunk != nil:
		m.cfg.Tracker.Mark(latency.StageFirstOutboundAudio)
		m.cfg.Tracker.Mark(latency.StageFirstResponseAudio)
		if err := m.cfg.AudioOut.SendAudio(e.llm.audioChunk); err != nil {
			slog.Warn("callfsm: send response audio failed", "call_id", m.call.ID, "err", err)
		}
	case e.llm.transcript != "":
		m.mu.Lock()
		m.pendingAgentText.WriteString(e.llm.transcript)
		m.mu.Unlock()
	case e.llm.responseComplete:
		m.disarm(timerInterruptionDebounce)
		m.finishResponse()
	}
}

func (m *Machine) handleBargeIn(sig vadSignal) {
	switch {
	case sig.speechStart:
		d := interruptionDebounce(m.cfg.Agent.Speech.InterruptionSensitivity)
		m.arm(timerInterruptionDebounce, d)
	case sig.speechEnd:
		m.disarm(timerInterruptionDebounce)
	}
}

func (m *Machine) doInterrupt() {
	m.disarm(timerResponding)
	cancelCtx, cancel := context.WithTimeout(m.ctx, 2*time.Second)
	defer cancel()
	if err := m.llmSession.Cancel(cancelCtx); err != nil {
		slog.Warn("callfsm: llm cancel failed", "call_id", m.call.ID, "err", err)
	}
	m.mu.Lock()
	m.call.Metrics.Interruptions++
	m.pendingAgentText.Reset()
	m.mu.Unlock()
	m.vadSession.Reset()
	m.setState(StateListening)
}

func (m *Machine) finishResponse() {
	m.disarm(timerResponding)
	m.appendTurn()
	m.setState(StateResponseComplete)
	m.arm(timerResponseCompleteTick, responseCompleteTick)
}

func (m *Machine) appendTurn() {
	m.mu.Lock()
	turn := model.Turn{
		TurnNumber:       m.call.NextTurnNumber(),
		UserText:         m.lastUserText,
		AgentText:        m.pendingAgentText.String(),
		Stage:            string(m.currentAnalysis.Stage),
		Profile:          string(m.currentAnalysis.Profile),
		Objections:       objectionStrings(m.currentAnalysis.Objections),
		AppliedPrinciple: string(m.currentPrinciple),
		Language:         string(m.currentAnalysis.Language),
		Sentiment:        m.currentAnalysis.Sentiment,
		FillerClipID:     m.currentFillerID,
		Timestamp:        time.Now(),
	}
	m.call.Transcript = append(m.call.Transcript, turn)
	m.call.Metrics.AverageSentiment = runningAverageSentiment(m.call.Transcript)
	m.pendingAgentText.Reset()
	m.currentFillerID = ""
	callID := m.call.ID
	m.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbWriteTimeout)
		defer cancel()
		if err := m.cfg.Store.AppendTurn(ctx, callID, turn); err != nil {
			slog.Warn("callfsm: append turn failed", "call_id", callID, "err", err)
		}
	}()
}

func runningAverageSentiment(turns []model.Turn) float64 {
	if len(turns) == 0 {
		return 0
	}
	var sum float64
	for _, t := range turns {
		sum += t.Sentiment
	}
	return sum / float64(len(turns))
}

func objectionStrings(objs []intelligence.Objection) []string {
	if len(objs) == 0 {
		return nil
	}
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = string(o)
	}
	return out
}

func (m *Machine) handleResponseComplete(e fsmEvent) {
	if e.kind != evTimer || e.timer != timerResponseCompleteTick {
		return
	}
	m.disarm(timerResponseCompleteTick)
	m.cfg.Tracker.ResetTurn()
	m.setState(StateListening)
}

func (m *Machine) handleVoicemail() {
	limits := m.cfg.Agent.Limits
	if !limits.VoicemailDetection {
		return
	}
	switch limits.VoicemailAction {
	case model.VoicemailLeaveMsg:
		ctx, cancel := context.WithTimeout(m.ctx, llmConnectTimeout)
		if err := m.llmSession.SendText(ctx, limits.VoicemailMessage); err != nil {
			slog.Warn("callfsm: voicemail message send failed", "call_id", m.call.ID, "err", err)
		}
		cancel()
		m.endCall(model.CallVoicemail, model.OutcomeVoicemail)
	case model.VoicemailTransfer:
		if m.cfg.Driver != nil {
			slog.Info("callfsm: voicemail transfer requested, no carrier-transfer primitive wired, hanging up", "call_id", m.call.ID)
		}
		m.endCall(model.CallVoicemail, model.OutcomeVoicemail)
	default: // VoicemailHangUp and anything unrecognized
		m.endCall(model.CallVoicemail, model.OutcomeVoicemail)
	}
}

func (m *Machine) handleLLMError(state State, cause error) {
	if state == StateInit {
		m.endCall(model.CallFailed, model.OutcomeLLMUnavailable)
		return
	}

	m.mu.Lock()
	m.llmClosing = true
	m.mu.Unlock()

	reconnectCtx, cancel := context.WithTimeout(m.ctx, 2*time.Second)
	sess, err := m.cfg.LLM.Open(reconnectCtx, m.systemInstruction, llmsession.VoiceConfig{
		VoiceID:      m.cfg.Agent.VoiceProfile.VoiceID,
		LanguageCode: m.cfg.Agent.VoiceProfile.LanguageCode,
	})
	cancel()
	if err != nil {
		slog.Warn("callfsm: llm reconnect failed", "call_id", m.call.ID, "cause", cause, "err", err)
		m.endCall(model.CallFailed, model.OutcomeLLMUnavailable)
		return
	}

	slog.Info("callfsm: llm session reconnected", "call_id", m.call.ID)
	m.mu.Lock()
	m.llmSession = sess
	m.llmClosing = false
	m.mu.Unlock()
	m.spawnLLMForwarder(sess)

	m.disarmAll(timerThinking, timerResponding, timerResponseCompleteTick, timerFillerGrace, timerInterruptionDebounce, timerHumanSpeaking)
	m.setState(StateListening)
}

// transitionCallStatus best-effort persists a model.CallStatus change; the
// database is never on the critical path, so failures are
// logged and not retried here (CallStore itself owns the retry queue).
func (m *Machine) transitionCallStatus(status model.CallStatus) {
	m.mu.Lock()
	m.call.Status = status
	callID := m.call.ID
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dbWriteTimeout)
	defer cancel()
	if err := m.cfg.Store.TransitionStatus(ctx, callID, status, time.Now()); err != nil {
		slog.Warn("callfsm: transition status failed", "call_id", callID, "status", status, "err", err)
	}
}

// endCall runs the CALL_ENDING table row's action (close LLM, finalize
// Call, emit webhook) and leaves the machine in ENDED.
func (m *Machine) endCall(status model.CallStatus, outcome model.Outcome) {
	m.setState(StateCallEnding)
	m.disarmAll(timerSetup, timerWelcome, timerHumanSpeaking, timerThinking, timerResponding,
		timerResponseCompleteTick, timerFillerGrace, timerMaxDuration, timerInterruptionDebounce)

	m.mu.Lock()
	m.llmClosing = true
	m.mu.Unlock()

	m.finalize(status, outcome)
	m.setState(StateEnded)
}

func (m *Machine) finalize(status model.CallStatus, outcome model.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if m.llmSession != nil {
		if err := m.llmSession.Close(); err != nil {
			slog.Warn("callfsm: close llm session failed", "call_id", m.call.ID, "err", err)
		}
	}
	if m.vadSession != nil {
		if err := m.vadSession.Close(); err != nil {
			slog.Warn("callfsm: close vad session failed", "call_id", m.call.ID, "err", err)
		}
	}

	m.mu.Lock()
	m.call.Status = status
	m.call.Outcome = outcome
	now := time.Now()
	m.call.EndedAt = &now
	m.call.Metrics.BottleneckStage = string(m.cfg.Tracker.Bottleneck())
	call := m.call
	m.mu.Unlock()

	if err := m.cfg.Store.FinalizeCall(ctx, call.ID, status, outcome, now, call.Metrics); err != nil {
		slog.Warn("callfsm: finalize call failed", "call_id", call.ID, "err", err)
	}
	m.cfg.Tracker.Finish(ctx)

	if m.cfg.OnEnded != nil {
		m.cfg.OnEnded(call)
	}
}

func (m *Machine) arm(kind timerKind, d time.Duration) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if t, ok := m.timers[kind]; ok {
		t.Stop()
	}
	m.timers[kind] = time.AfterFunc(d, func() {
		m.postEvent(fsmEvent{kind: evTimer, timer: kind})
	})
}

func (m *Machine) disarm(kind timerKind) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if t, ok := m.timers[kind]; ok {
		t.Stop()
		delete(m.timers, kind)
	}
}

func (m *Machine) disarmAll(kinds ...timerKind) {
	for _, k := range kinds {
		m.disarm(k)
	}
}

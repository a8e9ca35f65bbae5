package energy_test

import (
	"testing"
	"time"

	"github.com/voicecore/callcore/pkg/vad"
	"github.com/voicecore/callcore/pkg/vad/energy"
)

func loudFrame(n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = 20000
	}
	return f
}

func silentFrame(n int) []int16 {
	return make([]int16, n)
}

func TestSpeechStartRequiresMinSpeechMs(t *testing.T) {
	eng := energy.New()
	sess, err := eng.NewSession(vad.Config{SampleRate: 8000, MinSpeechMs: 60, SilenceHangoverMs: 800, EnergyThresholdDb: -40})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	frame := loudFrame(160)
	frameDur := 20 * time.Millisecond

	ev, err := sess.ProcessFrame(frame, frameDur)
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.NoEvent {
		t.Errorf("first loud frame: got %v, want NoEvent (below MinSpeechMs)", ev.Type)
	}

	ev, err = sess.ProcessFrame(frame, frameDur)
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.NoEvent {
		t.Errorf("second loud frame: got %v, want NoEvent (40ms < 60ms)", ev.Type)
	}

	ev, err = sess.ProcessFrame(frame, frameDur)
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.SpeechStart {
		t.Errorf("third loud frame: got %v, want SpeechStart (60ms reached)", ev.Type)
	}
}

func TestSpeechEndRequiresSilenceHangover(t *testing.T) {
	eng := energy.New()
	sess, err := eng.NewSession(vad.Config{SampleRate: 8000, MinSpeechMs: 20, SilenceHangoverMs: 40, EnergyThresholdDb: -40})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	frameDur := 20 * time.Millisecond
	loud := loudFrame(160)
	silent := silentFrame(160)

	ev, _ := sess.ProcessFrame(loud, frameDur)
	if ev.Type != vad.SpeechStart {
		t.Fatalf("expected SpeechStart, got %v", ev.Type)
	}

	ev, _ = sess.ProcessFrame(silent, frameDur)
	if ev.Type != vad.AudioChunk {
		t.Errorf("first silent frame: got %v, want AudioChunk (20ms < 40ms hangover)", ev.Type)
	}

	ev, _ = sess.ProcessFrame(silent, frameDur)
	if ev.Type != vad.SpeechEnd {
		t.Errorf("second silent frame: got %v, want SpeechEnd (40ms hangover reached)", ev.Type)
	}
	if ev.SilenceDuration != 40*time.Millisecond {
		t.Errorf("SilenceDuration = %v, want 40ms", ev.SilenceDuration)
	}
}

func TestNoiseSpikeDoesNotTriggerSpeechStart(t *testing.T) {
	eng := energy.New()
	sess, err := eng.NewSession(vad.Config{SampleRate: 8000, MinSpeechMs: 100, SilenceHangoverMs: 800, EnergyThresholdDb: -40})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	frameDur := 20 * time.Millisecond
	ev, _ := sess.ProcessFrame(loudFrame(160), frameDur)
	if ev.Type != vad.NoEvent {
		t.Fatalf("spike frame: got %v, want NoEvent", ev.Type)
	}
	ev, _ = sess.ProcessFrame(silentFrame(160), frameDur)
	if ev.Type != vad.NoEvent {
		t.Errorf("after spike drops: got %v, want NoEvent (run reset)", ev.Type)
	}
}

func TestResetClearsState(t *testing.T) {
	eng := energy.New()
	sess, err := eng.NewSession(vad.Config{SampleRate: 8000, MinSpeechMs: 20, SilenceHangoverMs: 800, EnergyThresholdDb: -40})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	frameDur := 20 * time.Millisecond
	ev, _ := sess.ProcessFrame(loudFrame(160), frameDur)
	if ev.Type != vad.SpeechStart {
		t.Fatalf("expected SpeechStart, got %v", ev.Type)
	}

	sess.Reset()

	ev, _ = sess.ProcessFrame(loudFrame(160), frameDur)
	if ev.Type != vad.SpeechStart {
		t.Errorf("after Reset, first loud frame: got %v, want SpeechStart (fresh state, not AudioChunk)", ev.Type)
	}
}

func TestEmptyFrameErrors(t *testing.T) {
	eng := energy.New()
	sess, err := eng.NewSession(vad.DefaultConfig(8000))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	if _, err := sess.ProcessFrame(nil, 20*time.Millisecond); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestNewSessionRejectsInvalidSampleRate(t *testing.T) {
	eng := energy.New()
	if _, err := eng.NewSession(vad.Config{SampleRate: 0}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

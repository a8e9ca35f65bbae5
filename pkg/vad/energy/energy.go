// Package energy implements vad.Engine with a simple RMS-energy threshold
// and silence-hangover state machine. It requires no model weights and no
// external dependency, making it the default detector for carrier audio
// where a dedicated VAD model is not configured.
package energy

import (
	"errors"
	"time"

	"github.com/voicecore/callcore/pkg/codec"
	"github.com/voicecore/callcore/pkg/vad"
)

// Engine constructs energy-threshold VAD sessions.
type Engine struct{}

// New returns a ready-to-use Engine.
func New() *Engine {
	return &Engine{}
}

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("energy: sample rate must be positive")
	}
	if cfg.EnergyThresholdDb == 0 {
		cfg.EnergyThresholdDb = vad.DefaultConfig(cfg.SampleRate).EnergyThresholdDb
	}
	if cfg.SilenceHangoverMs <= 0 {
		cfg.SilenceHangoverMs = 800
	}
	if cfg.MinSpeechMs <= 0 {
		cfg.MinSpeechMs = 120
	}
	return &session{cfg: cfg}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	cfg vad.Config

	// speaking is true once a segment has been confirmed with SpeechStart.
	speaking bool

	// aboveRun accumulates continuous above-threshold duration while not
	// yet speaking, gating SpeechStart on MinSpeechMs.
	aboveRun time.Duration

	// belowRun accumulates continuous below-threshold duration while
	// speaking, gating SpeechEnd on SilenceHangoverMs.
	belowRun time.Duration
}

func (s *session) ProcessFrame(pcm []int16, frameDuration time.Duration) (vad.Event, error) {
	if len(pcm) == 0 {
		return vad.Event{}, errors.New("energy: empty frame")
	}

	db := codec.RMSDb(pcm)
	isAbove := db >= s.cfg.EnergyThresholdDb

	if !s.speaking {
		if isAbove {
			s.aboveRun += frameDuration
			s.belowRun = 0
			if s.aboveRun >= time.Duration(s.cfg.MinSpeechMs)*time.Millisecond {
				s.speaking = true
				s.aboveRun = 0
				return vad.Event{Type: vad.SpeechStart, EnergyDb: db}, nil
			}
			return vad.Event{Type: vad.NoEvent, EnergyDb: db}, nil
		}
		s.aboveRun = 0
		return vad.Event{Type: vad.NoEvent, EnergyDb: db}, nil
	}

	// Already speaking: every frame is part of the segment until hangover
	// silence closes it.
	if isAbove {
		s.belowRun = 0
		return vad.Event{Type: vad.AudioChunk, EnergyDb: db}, nil
	}

	s.belowRun += frameDuration
	if s.belowRun >= time.Duration(s.cfg.SilenceHangoverMs)*time.Millisecond {
		s.speaking = false
		silence := s.belowRun
		s.belowRun = 0
		return vad.Event{Type: vad.SpeechEnd, EnergyDb: db, SilenceDuration: silence}, nil
	}
	return vad.Event{Type: vad.AudioChunk, EnergyDb: db}, nil
}

func (s *session) Reset() {
	s.speaking = false
	s.aboveRun = 0
	s.belowRun = 0
}

func (s *session) Close() error {
	return nil
}

var _ vad.Session = (*session)(nil)

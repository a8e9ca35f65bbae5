// Package codec provides pure audio-format conversion functions for the
// call core's media pipeline: µ-law/linear-PCM conversion, resampling
// between the telephony and LLM-session sample rates, Float32/Int16
// conversion, and energy (RMS dB) measurement.
//
// Every exported function is pure: no I/O and no package-level mutable
// state. FormatConverter is the stateful exception: it keeps a per-converter
// sync.Once and logs a warning on its first rate mismatch. Allocation is
// limited to the returned buffer, plus one intermediate buffer in
// MuLawFrameToPCM and PCMFrameToMuLaw.
package codec

import "time"

// Frame is the atomic unit of audio transport through the media bridge,
// codec, and VAD stages.
type Frame struct {
	// PCM holds little-endian int16 mono samples.
	PCM []int16

	// SampleRate in Hz (8000, 16000, 24000, or 48000 in this system).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to call start.
	Timestamp time.Duration
}

package codec

import (
	"log/slog"
	"sync"
)

// FormatConverter resamples Frames to a target sample rate, logging a
// warning on the first mismatch it observes. Create one per stream; it is
// not designed for shared use across goroutines.
type FormatConverter struct {
	TargetHz       int
	warnedMismatch sync.Once
}

// Convert resamples frame to the target rate. If the frame already matches,
// it is returned unchanged.
func (c *FormatConverter) Convert(frame Frame) Frame {
	if frame.SampleRate == c.TargetHz {
		return frame
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("codec: sample rate mismatch, resampling",
			"from_hz", frame.SampleRate, "to_hz", c.TargetHz)
	})
	return Frame{
		PCM:        Resample(frame.PCM, frame.SampleRate, c.TargetHz),
		SampleRate: c.TargetHz,
		Timestamp:  frame.Timestamp,
	}
}

// MuLawFrameToPCM decodes a 20ms µ-law carrier frame (8 kHz) into a PCM
// Frame at targetHz, resampling as needed. This is the carrier-inbound path:
// 8 kHz µ-law → 16 kHz PCM for the LLM session.
func MuLawFrameToPCM(payload []byte, targetHz int, ts Frame) Frame {
	pcm8k := MuLawToLinear16(payload)
	out := Resample(pcm8k, 8000, targetHz)
	return Frame{PCM: out, SampleRate: targetHz, Timestamp: ts.Timestamp}
}

// PCMFrameToMuLaw encodes a PCM frame (typically 24 kHz from the LLM
// session) down to 8 kHz µ-law bytes for the carrier-outbound path.
func PCMFrameToMuLaw(frame Frame) []byte {
	pcm8k := Resample(frame.PCM, frame.SampleRate, 8000)
	return Linear16ToMuLaw(pcm8k)
}

package codec_test

import (
	"testing"

	"github.com/voicecore/callcore/pkg/codec"
)

func TestMuLawRoundTrip(t *testing.T) {
	// Exercise all 256 µ-law code points: decode then re-encode must
	// reproduce the original byte exactly.
	for i := 0; i < 256; i++ {
		b := byte(i)
		linear := codec.MuLawToLinear16([]byte{b})
		back := codec.Linear16ToMuLaw(linear)
		if back[0] != b {
			t.Errorf("code point %d: round trip got %d, want %d", i, back[0], b)
		}
	}
}

func TestResampleIdentity(t *testing.T) {
	samples := []int16{100, -200, 300, -400, 500}
	got := codec.Resample(samples, 16000, 16000)
	if len(got) != len(samples) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestResampleUpDownRoundTrip(t *testing.T) {
	// A band-limited (slowly varying) signal should survive an up-then-down
	// resample within a small L-infinity bound.
	n := 160
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(1000 * sinApprox(float64(i)/float64(n)))
	}

	up := codec.Resample(samples, 16000, 24000)
	down := codec.Resample(up, 24000, 16000)

	if len(down) < n-2 || len(down) > n+2 {
		t.Fatalf("round-trip length drift too large: got %d, want ~%d", len(down), n)
	}

	const tolerance = 150
	limit := len(down)
	if n < limit {
		limit = n
	}
	for i := 0; i < limit; i++ {
		diff := int(samples[i]) - int(down[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			t.Errorf("sample %d: |%d - %d| = %d exceeds tolerance %d", i, samples[i], down[i], diff, tolerance)
		}
	}
}

// sinApprox is a cheap deterministic triangle-wave stand-in for a
// band-limited signal; avoids pulling in math.Sin just for test fixtures.
func sinApprox(x float64) float64 {
	frac := x - float64(int(x))
	if frac < 0.5 {
		return 4*frac - 1
	}
	return 3 - 4*frac
}

func TestFloat32ToInt16Clamping(t *testing.T) {
	in := []float32{1.5, -1.5, 0, 1, -1, 0.5}
	out := codec.Float32ToInt16(in)
	want := []int16{32767, -32768, 0, 32767, -32768, 16384}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestRMSDbFloor(t *testing.T) {
	silence := make([]int16, 100)
	db := codec.RMSDb(silence)
	if db > -59 {
		t.Errorf("silence RMSDb = %f, want <= -59 (floor of 0.001)", db)
	}

	loud := make([]int16, 100)
	for i := range loud {
		loud[i] = 32767
	}
	loudDb := codec.RMSDb(loud)
	if loudDb < db {
		t.Errorf("loud signal RMSDb %f should exceed silence RMSDb %f", loudDb, db)
	}
	if loudDb > 1 {
		t.Errorf("full-scale RMSDb = %f, want ~0", loudDb)
	}
}

func TestFormatConverterPassthrough(t *testing.T) {
	c := &codec.FormatConverter{TargetHz: 16000}
	frame := codec.Frame{PCM: []int16{1, 2, 3}, SampleRate: 16000}
	out := c.Convert(frame)
	if len(out.PCM) != 3 || out.SampleRate != 16000 {
		t.Errorf("passthrough mutated frame: %+v", out)
	}
}

func TestFormatConverterResamples(t *testing.T) {
	c := &codec.FormatConverter{TargetHz: 16000}
	frame := codec.Frame{PCM: make([]int16, 160), SampleRate: 8000}
	out := c.Convert(frame)
	if out.SampleRate != 16000 {
		t.Errorf("target rate = %d, want 16000", out.SampleRate)
	}
	if len(out.PCM) != 320 {
		t.Errorf("resampled length = %d, want 320", len(out.PCM))
	}
}

func TestMuLawFrameToPCMAndBack(t *testing.T) {
	mulaw := make([]byte, 160) // 20ms @ 8kHz
	for i := range mulaw {
		mulaw[i] = 0xFF // silence code point in µ-law
	}
	frame := codec.MuLawFrameToPCM(mulaw, 16000, codec.Frame{})
	if frame.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", frame.SampleRate)
	}
	if len(frame.PCM) != 320 {
		t.Fatalf("pcm length = %d, want 320", len(frame.PCM))
	}

	back := codec.PCMFrameToMuLaw(codec.Frame{PCM: frame.PCM, SampleRate: 16000})
	if len(back) != 160 {
		t.Fatalf("re-encoded length = %d, want 160", len(back))
	}
}

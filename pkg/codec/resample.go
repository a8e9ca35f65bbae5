package codec

import "math"

// Resample converts mono int16 PCM samples from fromHz to toHz using linear
// interpolation. If fromHz == toHz, samples is returned unchanged (no copy).
// Supported pairs include (8000,16000), (16000,24000), (24000,8000),
// (48000,16000), (44100,16000), but the implementation is general and
// accepts any positive rate pair.
func Resample(samples []int16, fromHz, toHz int) []int16 {
	if fromHz <= 0 || toHz <= 0 || fromHz == toHz || len(samples) == 0 {
		return samples
	}

	srcLen := len(samples)
	dstLen := int(int64(srcLen) * int64(toHz) / int64(fromHz))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(fromHz) / float64(toHz)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		var s1 int16
		if srcIdx+1 < srcLen {
			s1 = samples[srcIdx+1]
		} else {
			s1 = s0
		}

		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// Float32ToInt16 converts normalized [-1, 1] float32 samples to int16 PCM,
// scaling by 32768 (the inverse of Int16ToFloat32), clamping out-of-range
// input, and rounding half-away-from-zero; +1.0 saturates at 32767.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		scaled := float64(f) * 32768
		if scaled >= 0 {
			out[i] = int16(math.Min(math.Floor(scaled+0.5), 32767))
		} else {
			out[i] = int16(math.Ceil(scaled - 0.5))
		}
	}
	return out
}

// Int16ToFloat32 converts int16 PCM samples to normalized [-1, 1] float32.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// rmsFloor is the minimum RMS value used to avoid log(0) in RMSDb.
const rmsFloor = 0.001

// RMSDb computes the root-mean-square energy of int16 PCM samples,
// normalized to [-1, 1], expressed in decibels, with a floor of 0.001
// (~ -60 dB) to avoid log(0).
func RMSDb(samples []int16) float64 {
	if len(samples) == 0 {
		return 20 * math.Log10(rmsFloor)
	}
	var sumSq float64
	for _, s := range samples {
		f := float64(s) / 32768
		sumSq += f * f
	}
	rms := math.Sqrt(sumSq / float64(len(samples)))
	if rms < rmsFloor {
		rms = rmsFloor
	}
	return 20 * math.Log10(rms)
}

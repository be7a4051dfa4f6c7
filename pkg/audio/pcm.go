// Package audio provides the 16-bit PCM primitives used by the voicelay
// pipeline: sample/byte conversion, gain boosting with clipping, peak
// normalisation, playback-rate shifting, and a minimal RIFF/WAV codec.
//
// All functions operate on little-endian signed 16-bit mono PCM unless
// stated otherwise. None of them mutate their input.
package audio

import (
	"errors"
	"math"
)

// SampleWidth is the byte width of one 16-bit PCM sample.
const SampleWidth = 2

// ErrMisaligned is returned when a byte buffer is not a whole number of
// 16-bit samples.
var ErrMisaligned = errors.New("audio: byte length is not a multiple of the sample width")

// BytesToSamples reinterprets little-endian bytes as int16 samples.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%SampleWidth != 0 {
		return nil, ErrMisaligned
	}
	samples := make([]int16, len(data)/SampleWidth)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// SamplesToBytes serialises int16 samples as little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*SampleWidth)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Boost multiplies every sample by gain and clips the result into
// [-ceiling, ceiling]. The ceiling is symmetric: the most negative
// representable value is never produced, matching the relay's
// volume-boost contract.
func Boost(samples []int16, gain float64, ceiling int16) []int16 {
	out := make([]int16, len(samples))
	lo, hi := -float64(ceiling), float64(ceiling)
	for i, s := range samples {
		v := float64(s) * gain
		if v > hi {
			v = hi
		} else if v < lo {
			v = lo
		}
		out[i] = int16(v)
	}
	return out
}

// NormalizePeak scales the signal so its peak sits headroomDB below full
// scale, then applies an additional gainDB of make-up gain. Results are
// clipped to the 16-bit range. A silent buffer is returned unchanged
// (copied) since there is no peak to normalise against.
func NormalizePeak(samples []int16, headroomDB, gainDB float64) []int16 {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	out := make([]int16, len(samples))
	if peak == 0 {
		copy(out, samples)
		return out
	}

	target := 32767.0 * math.Pow(10, -headroomDB/20)
	scale := target / peak * math.Pow(10, gainDB/20)

	for i, s := range samples {
		v := float64(s) * scale
		if v > 32767 {
			v = 32767
		} else if v < -32767 {
			v = -32767
		}
		out[i] = int16(v)
	}
	return out
}

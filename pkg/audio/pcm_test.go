package audio

import (
	"errors"
	"math"
	"testing"
)

func TestBytesToSamples_RoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	got, err := BytesToSamples(SamplesToBytes(in))
	if err != nil {
		t.Fatalf("BytesToSamples: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("length = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestBytesToSamples_OddLength(t *testing.T) {
	t.Parallel()
	_, err := BytesToSamples([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("err = %v, want ErrMisaligned", err)
	}
}

func TestBoost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      int16
		gain    float64
		ceiling int16
		want    int16
	}{
		{"identity", 100, 1.0, 32767, 100},
		{"quadruple", 1000, 4.0, 32767, 4000},
		{"clip positive", 20000, 4.0, 32767, 32767},
		{"clip negative", -20000, 4.0, 32767, -32767},
		{"zero stays zero", 0, 4.0, 32767, 0},
		{"attenuate", -8000, 0.5, 32767, -4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Boost([]int16{tt.in}, tt.gain, tt.ceiling)
			if got[0] != tt.want {
				t.Errorf("Boost(%d, %v) = %d, want %d", tt.in, tt.gain, got[0], tt.want)
			}
		})
	}
}

func TestBoost_PreservesLengthAndInput(t *testing.T) {
	t.Parallel()
	in := []int16{1, 2, 3, 4}
	out := Boost(in, 4.0, 32767)
	if len(out) != len(in) {
		t.Fatalf("output length = %d, want %d", len(out), len(in))
	}
	if in[0] != 1 || in[3] != 4 {
		t.Error("Boost mutated its input")
	}
}

func TestNormalizePeak_Silent(t *testing.T) {
	t.Parallel()
	in := []int16{0, 0, 0}
	out := NormalizePeak(in, 1.0, 2.0)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %d, want 0 for silent input", i, s)
		}
	}
}

func TestNormalizePeak_PeakLandsAtTarget(t *testing.T) {
	t.Parallel()
	in := []int16{100, -4000, 250}
	headroom, gain := 1.0, 2.0
	out := NormalizePeak(in, headroom, gain)

	var peak float64
	for _, s := range out {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}

	// Peak should land at -1 dBFS + 2 dB = +1 dB over the -1 dB target,
	// clipped at 32767.
	want := 32767.0 * math.Pow(10, (-headroom+gain)/20)
	if want > 32767 {
		want = 32767
	}
	if math.Abs(peak-want) > 2 {
		t.Errorf("peak = %v, want ≈ %v", peak, want)
	}
}

func TestNormalizePeak_NeverExceedsRange(t *testing.T) {
	t.Parallel()
	in := []int16{32767, -32768, 31000}
	out := NormalizePeak(in, 0.0, 12.0)
	for i, s := range out {
		if s > 32767 || s < -32767 {
			t.Errorf("sample %d = %d escapes the symmetric 16-bit range", i, s)
		}
	}
}

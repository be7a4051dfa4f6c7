package synth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicelay/voicelay/pkg/audio"
	"github.com/voicelay/voicelay/pkg/provider/tts/mock"
)

func wavOf(samples []int16, rate, channels int) []byte {
	return audio.EncodeWAV(audio.SamplesToBytes(samples), rate, channels)
}

func TestSynthesizeProducesShiftedMonoWAV(t *testing.T) {
	t.Parallel()

	src := make([]int16, 1000)
	for i := range src {
		src[i] = int16(i % 2000)
	}
	p := &mock.Provider{Audio: wavOf(src, 16000, 1)}
	dir := t.TempDir()
	s := New(p, dir, 16000, 1.0, 2.0, 1.25)

	name, err := s.Synthesize(context.Background(), "hello", "response_1")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if name != "response_1.wav" {
		t.Errorf("name = %q, want response_1.wav", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("clip format = %d Hz / %d ch, want 16000 Hz / 1 ch", clip.SampleRate, clip.Channels)
	}
	got := len(clip.Data) / audio.SampleWidth
	if got != 800 {
		t.Errorf("shifted clip has %d samples, want 800 (1000 / 1.25)", got)
	}
}

func TestSynthesizeRemovesIntermediate(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Audio: wavOf([]int16{1, 2, 3, 4}, 16000, 1)}
	dir := t.TempDir()
	s := New(p, dir, 16000, 1.0, 2.0, 1.25)

	if _, err := s.Synthesize(context.Background(), "hi", "response_2"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "temp_response_2.wav")); !os.IsNotExist(err) {
		t.Errorf("intermediate survived: stat error = %v", err)
	}
}

func TestSynthesizeRemovesIntermediateOnDecodeFailure(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Audio: []byte("definitely not a wav file header")}
	dir := t.TempDir()
	s := New(p, dir, 16000, 1.0, 2.0, 1.25)

	if _, err := s.Synthesize(context.Background(), "hi", "response_3"); err == nil {
		t.Fatal("Synthesize() succeeded on junk audio")
	}
	if _, err := os.Stat(filepath.Join(dir, "temp_response_3.wav")); !os.IsNotExist(err) {
		t.Errorf("intermediate survived failure: stat error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "response_3.wav")); !os.IsNotExist(err) {
		t.Errorf("final file written despite failure: stat error = %v", err)
	}
}

func TestSynthesizeDownmixesAndResamples(t *testing.T) {
	t.Parallel()

	// Stereo at 24 kHz: both channels carry the same ramp.
	stereo := make([]int16, 2400*2)
	for i := 0; i < 2400; i++ {
		stereo[2*i] = int16(i)
		stereo[2*i+1] = int16(i)
	}
	p := &mock.Provider{Audio: wavOf(stereo, 24000, 2)}
	dir := t.TempDir()
	s := New(p, dir, 16000, 1.0, 2.0, 1.0)

	name, err := s.Synthesize(context.Background(), "hi", "response_4")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	got := len(clip.Data) / audio.SampleWidth
	if got != 1600 {
		t.Errorf("resampled clip has %d samples, want 1600", got)
	}
}

func TestSynthesizeProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("backend down")
	p := &mock.Provider{Err: wantErr}
	s := New(p, t.TempDir(), 16000, 1.0, 2.0, 1.25)

	if _, err := s.Synthesize(context.Background(), "hi", "response_5"); !errors.Is(err, wantErr) {
		t.Errorf("Synthesize() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	s := New(p, t.TempDir(), 16000, 1.0, 2.0, 1.25)
	if _, err := s.Synthesize(context.Background(), "hi", "response_6"); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Synthesize() error = %v, want ErrNoAudio", err)
	}
}

// Package synth turns reply text into the playback WAV placed in the
// response cache directory.
//
// The provider's output is staged on disk first, then decoded, downmixed,
// resampled to the relay rate, peak-normalized and sped up before the final
// file is written. The staged intermediate is removed on every path.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voicelay/voicelay/pkg/audio"
	"github.com/voicelay/voicelay/pkg/provider/tts"
)

// ErrNoAudio is returned when the provider yields an empty payload.
var ErrNoAudio = errors.New("synth: provider returned no audio")

// Synthesizer renders reply text into processed WAV files under dir.
type Synthesizer struct {
	provider   tts.Provider
	dir        string
	sampleRate int
	headroomDB float64
	gainDB     float64
	speedRatio float64
}

// New returns a Synthesizer writing into dir. sampleRate is the relay's
// PCM rate; headroomDB/gainDB drive peak normalization and speedRatio the
// playback-rate shift.
func New(provider tts.Provider, dir string, sampleRate int, headroomDB, gainDB, speedRatio float64) *Synthesizer {
	return &Synthesizer{
		provider:   provider,
		dir:        dir,
		sampleRate: sampleRate,
		headroomDB: headroomDB,
		gainDB:     gainDB,
		speedRatio: speedRatio,
	}
}

// Synthesize renders text under the given response id and returns the final
// file's base name (<id>.wav). The intermediate temp_<id>.wav never
// survives the call, success or not.
func (s *Synthesizer) Synthesize(ctx context.Context, text, id string) (string, error) {
	raw, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return "", fmt.Errorf("synth: provider: %w", err)
	}
	if len(raw) == 0 {
		return "", ErrNoAudio
	}

	staged := filepath.Join(s.dir, "temp_"+id+".wav")
	if err := os.WriteFile(staged, raw, 0o644); err != nil {
		return "", fmt.Errorf("synth: stage audio: %w", err)
	}
	defer os.Remove(staged)

	clip, err := audio.DecodeWAV(raw)
	if err != nil {
		return "", fmt.Errorf("synth: decode provider audio: %w", err)
	}

	pcm := clip.Data
	switch clip.Channels {
	case 1:
	case 2:
		pcm = audio.StereoToMono(pcm)
	default:
		return "", fmt.Errorf("synth: unsupported channel count %d", clip.Channels)
	}
	if clip.SampleRate != s.sampleRate {
		pcm = audio.ResampleMono16(pcm, clip.SampleRate, s.sampleRate)
	}

	samples, err := audio.BytesToSamples(pcm)
	if err != nil {
		return "", fmt.Errorf("synth: decode samples: %w", err)
	}
	samples = audio.NormalizePeak(samples, s.headroomDB, s.gainDB)
	pcm = audio.RateShift(audio.SamplesToBytes(samples), s.sampleRate, s.speedRatio)

	name := id + ".wav"
	final := filepath.Join(s.dir, name)
	if err := os.WriteFile(final, audio.EncodeWAV(pcm, s.sampleRate, 1), 0o644); err != nil {
		return "", fmt.Errorf("synth: write response: %w", err)
	}
	return name, nil
}

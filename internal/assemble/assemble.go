// Package assemble turns a session's staged PCM chunks into one boosted
// utterance ready for transcription.
package assemble

import (
	"errors"
	"fmt"
	"os"

	"github.com/voicelay/voicelay/internal/chunkstore"
	"github.com/voicelay/voicelay/pkg/audio"
)

var (
	// ErrNoChunks is returned when the session has nothing staged.
	ErrNoChunks = errors.New("assemble: no chunks staged")
	// ErrMisaligned is returned when a chunk's byte count is not a whole
	// number of 16-bit samples.
	ErrMisaligned = errors.New("assemble: chunk not sample aligned")
)

// Assembler concatenates chunks and applies the configured gain boost.
type Assembler struct {
	sampleRate int
	gain       float64
	ceiling    int16
}

// New returns an Assembler producing mono 16-bit PCM at sampleRate, with
// samples multiplied by gain and clipped at +/- ceiling.
func New(sampleRate int, gain float64, ceiling int16) *Assembler {
	return &Assembler{sampleRate: sampleRate, gain: gain, ceiling: ceiling}
}

// SampleRate returns the configured output rate.
func (a *Assembler) SampleRate() int {
	return a.sampleRate
}

// Assemble reads every chunk in order, concatenates them and boosts the
// result. Chunk order is the caller's responsibility; chunkstore.ListOrdered
// already yields arrival order.
func (a *Assembler) Assemble(refs []chunkstore.Ref) ([]int16, error) {
	if len(refs) == 0 {
		return nil, ErrNoChunks
	}

	var raw []byte
	for _, r := range refs {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return nil, fmt.Errorf("assemble: read chunk %s: %w", r.Name, err)
		}
		// Alignment is a per-chunk property. Two odd-length chunks would
		// concatenate to an even total and smear samples across the
		// chunk boundary.
		if len(data)%audio.SampleWidth != 0 {
			return nil, fmt.Errorf("%w: %s", ErrMisaligned, r.Name)
		}
		raw = append(raw, data...)
	}

	samples, err := audio.BytesToSamples(raw)
	if err != nil {
		if errors.Is(err, audio.ErrMisaligned) {
			return nil, ErrMisaligned
		}
		return nil, fmt.Errorf("assemble: decode samples: %w", err)
	}
	return audio.Boost(samples, a.gain, a.ceiling), nil
}

// WriteWAV stores the samples as a mono WAV file at path for the
// transcription hand-off. The caller removes the file when done with it.
func (a *Assembler) WriteWAV(path string, samples []int16) error {
	wav := audio.EncodeWAV(audio.SamplesToBytes(samples), a.sampleRate, 1)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return fmt.Errorf("assemble: write wav: %w", err)
	}
	return nil
}

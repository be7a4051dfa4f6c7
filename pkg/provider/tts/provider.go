// Package tts defines the Provider interface for speech-synthesis backends.
//
// A provider turns reply text into encoded audio bytes. The relay expects a
// complete, self-describing container (WAV) rather than a raw sample stream
// so it can decode, resample and post-process the result uniformly.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any speech-synthesis backend.
type Provider interface {
	// Synthesize renders text into encoded WAV bytes. Callers treat a
	// failure as "no audio": the reply text still reaches the client, the
	// audio URL is simply absent.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., OpenAI
// Whisper or a local whisper server) behind a uniform interface: hand it a
// WAV file on disk, get the recognised text back. The relay's end-of-
// utterance pipeline writes the assembled utterance to a transient WAV and
// submits it through this interface.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe submits the WAV file at wavPath and returns the recognised
	// text. language is a lowercase ISO-639-1 hint (e.g., "tr", "en"); an
	// empty string lets the provider auto-detect.
	//
	// Returns an error if the file cannot be read or the backend call
	// fails. Callers that want the relay's graceful-degradation behaviour
	// must map errors to an empty transcript themselves — the provider
	// reports failures honestly.
	Transcribe(ctx context.Context, wavPath, language string) (string, error)
}

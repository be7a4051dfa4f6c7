// Package llm defines the Provider interface for chat-completion backends.
//
// A provider receives the full ordered conversation history and returns the
// assistant's reply text. Sampling parameters are fixed per provider
// instance — the relay treats them as static configuration rather than
// per-request knobs.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/voicelay/voicelay/pkg/types"
)

// SamplingParams are the decoding settings applied to every completion.
// The zero value means "provider default" for each field.
type SamplingParams struct {
	// Temperature controls output randomness in [0.0, 2.0].
	Temperature float64

	// TopP is the nucleus-sampling probability mass in (0.0, 1.0].
	TopP float64

	// MaxTokens caps the completion length. 0 means no explicit cap.
	MaxTokens int

	// FrequencyPenalty discourages verbatim repetition in [-2.0, 2.0].
	FrequencyPenalty float64

	// PresencePenalty discourages topic repetition in [-2.0, 2.0].
	PresencePenalty float64
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete submits the ordered messages and returns the assistant's
	// reply text. messages must be non-empty and ordered oldest first; the
	// first message is conventionally the system seed.
	Complete(ctx context.Context, messages []types.Message) (string, error)
}

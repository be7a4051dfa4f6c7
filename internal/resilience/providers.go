package resilience

import (
	"context"

	"github.com/voicelay/voicelay/pkg/provider/llm"
	"github.com/voicelay/voicelay/pkg/provider/stt"
	"github.com/voicelay/voicelay/pkg/provider/tts"
	"github.com/voicelay/voicelay/pkg/types"
)

// Compile-time interface assertions.
var (
	_ stt.Provider = (*STT)(nil)
	_ llm.Provider = (*LLM)(nil)
	_ tts.Provider = (*TTS)(nil)
)

// STT wraps an stt.Provider with a circuit breaker.
type STT struct {
	inner   stt.Provider
	breaker *Breaker
}

// NewSTT decorates provider with a breaker named "stt" unless cfg says
// otherwise.
func NewSTT(provider stt.Provider, cfg BreakerConfig) *STT {
	if cfg.Name == "" {
		cfg.Name = "stt"
	}
	return &STT{inner: provider, breaker: NewBreaker(cfg)}
}

// Transcribe implements stt.Provider.
func (s *STT) Transcribe(ctx context.Context, wavPath, language string) (string, error) {
	var text string
	err := s.breaker.Do(func() error {
		var err error
		text, err = s.inner.Transcribe(ctx, wavPath, language)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// LLM wraps an llm.Provider with a circuit breaker.
type LLM struct {
	inner   llm.Provider
	breaker *Breaker
}

// NewLLM decorates provider with a breaker named "llm" unless cfg says
// otherwise.
func NewLLM(provider llm.Provider, cfg BreakerConfig) *LLM {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &LLM{inner: provider, breaker: NewBreaker(cfg)}
}

// Complete implements llm.Provider.
func (l *LLM) Complete(ctx context.Context, messages []types.Message) (string, error) {
	var reply string
	err := l.breaker.Do(func() error {
		var err error
		reply, err = l.inner.Complete(ctx, messages)
		return err
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// TTS wraps a tts.Provider with a circuit breaker.
type TTS struct {
	inner   tts.Provider
	breaker *Breaker
}

// NewTTS decorates provider with a breaker named "tts" unless cfg says
// otherwise.
func NewTTS(provider tts.Provider, cfg BreakerConfig) *TTS {
	if cfg.Name == "" {
		cfg.Name = "tts"
	}
	return &TTS{inner: provider, breaker: NewBreaker(cfg)}
}

// Synthesize implements tts.Provider.
func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := t.breaker.Do(func() error {
		var err error
		audio, err = t.inner.Synthesize(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

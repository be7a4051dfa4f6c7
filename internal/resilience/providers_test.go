package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	llmmock "github.com/voicelay/voicelay/pkg/provider/llm/mock"
	sttmock "github.com/voicelay/voicelay/pkg/provider/stt/mock"
	ttsmock "github.com/voicelay/voicelay/pkg/provider/tts/mock"
	"github.com/voicelay/voicelay/pkg/types"
)

func TestSTTPassesThrough(t *testing.T) {
	t.Parallel()

	inner := &sttmock.Provider{Text: "merhaba"}
	p := NewSTT(inner, BreakerConfig{})

	text, err := p.Transcribe(context.Background(), "/tmp/u.wav", "tr")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "merhaba" {
		t.Errorf("Transcribe() = %q, want merhaba", text)
	}
	if inner.CallCount() != 1 {
		t.Errorf("inner called %d times, want 1", inner.CallCount())
	}
}

func TestLLMShortCircuitsWhenOpen(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Provider{Err: errors.New("rate limited")}
	p := NewLLM(inner, BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	msgs := []types.Message{{Role: types.RoleUser, Content: "hi"}}

	for i := 0; i < 2; i++ {
		if _, err := p.Complete(context.Background(), msgs); err == nil {
			t.Fatalf("call %d succeeded, want failure", i)
		}
	}
	// The breaker is open now; the backend must not see this call.
	if _, err := p.Complete(context.Background(), msgs); !errors.Is(err, ErrOpen) {
		t.Errorf("Complete() error = %v, want ErrOpen", err)
	}
	if got := len(inner.Calls); got != 2 {
		t.Errorf("inner called %d times, want 2", got)
	}
}

func TestTTSPropagatesBackendError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("voice backend down")
	inner := &ttsmock.Provider{Err: wantErr}
	p := NewTTS(inner, BreakerConfig{})

	if _, err := p.Synthesize(context.Background(), "selam"); !errors.Is(err, wantErr) {
		t.Errorf("Synthesize() error = %v, want wrapped backend error", err)
	}
}

func TestTTSPassesThrough(t *testing.T) {
	t.Parallel()

	inner := &ttsmock.Provider{Audio: []byte{1, 2, 3}}
	p := NewTTS(inner, BreakerConfig{})

	audio, err := p.Synthesize(context.Background(), "selam")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(audio) != 3 {
		t.Errorf("Synthesize() returned %d bytes, want 3", len(audio))
	}
}

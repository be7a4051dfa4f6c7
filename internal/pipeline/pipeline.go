// Package pipeline runs the end-of-utterance chain: assemble the staged
// chunks, transcribe, complete, synthesize, cache.
//
// Stage failures degrade instead of aborting. A failed transcription yields
// an empty transcript, which short-circuits to a "not understood" reply. A
// failed completion surfaces as a visible error marker in the reply text. A
// failed synthesis leaves the audio URL empty while the text still reaches
// the client. Only assembly problems are real errors to the caller.
//
// Runs are gated per session with a single-flight group, so two concurrent
// end-of-utterance signals for the same speaker produce one pipeline
// execution and share its result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/voicelay/voicelay/internal/assemble"
	"github.com/voicelay/voicelay/internal/cache"
	"github.com/voicelay/voicelay/internal/chunkstore"
	"github.com/voicelay/voicelay/internal/convo"
	"github.com/voicelay/voicelay/internal/observe"
	"github.com/voicelay/voicelay/internal/synth"
	"github.com/voicelay/voicelay/pkg/provider/llm"
	"github.com/voicelay/voicelay/pkg/provider/stt"
	"github.com/voicelay/voicelay/pkg/types"
)

// ErrNoUtterance is returned by Run when the session has no staged chunks.
var ErrNoUtterance = errors.New("pipeline: no audio data staged")

// notUnderstood is the reply shown when transcription yields nothing.
const notUnderstood = "[Speech not understood]"

// Result is what one pipeline run hands back to the transport layer.
type Result struct {
	// Text is the transcript, empty when speech was not understood.
	Text string `json:"text"`
	// Response is the assistant reply or a visible error marker.
	Response string `json:"response"`
	// AudioURL points at the synthesized reply, empty when synthesis failed.
	AudioURL string `json:"audio_url"`
}

// Runner owns the utterance-to-reply chain for all sessions.
type Runner struct {
	chunks   *chunkstore.Store
	asm      *assemble.Assembler
	registry *convo.Registry
	stt      stt.Provider
	llm      llm.Provider
	synth    *synth.Synthesizer
	cache    *cache.Cache
	language string
	metrics  *observe.Metrics
	logger   *slog.Logger

	group singleflight.Group
}

// New wires a Runner. metrics and logger fall back to the package defaults
// when nil.
func New(
	chunks *chunkstore.Store,
	asm *assemble.Assembler,
	registry *convo.Registry,
	sttProvider stt.Provider,
	llmProvider llm.Provider,
	synthesizer *synth.Synthesizer,
	replyCache *cache.Cache,
	language string,
	metrics *observe.Metrics,
	logger *slog.Logger,
) *Runner {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		chunks:   chunks,
		asm:      asm,
		registry: registry,
		stt:      sttProvider,
		llm:      llmProvider,
		synth:    synthesizer,
		cache:    replyCache,
		language: language,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run executes the pipeline for one session. Concurrent calls for the same
// session collapse into a single execution whose result is shared.
//
// A started run is committed to completion. The caller's cancellation is
// stripped so a disconnecting client cannot abort in-flight gateway calls,
// which under single flight would also poison the result shared with every
// concurrent waiter.
func (r *Runner) Run(ctx context.Context, session string) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(session, func() (any, error) {
		return r.run(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (r *Runner) run(ctx context.Context, session string) (*Result, error) {
	start := time.Now()
	ctx, span := observe.StartRun(ctx, session)
	defer span.End()
	log := r.logger.With("session", session)

	refs, err := r.chunks.ListOrdered(session)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list chunks: %w", err)
	}
	if len(refs) == 0 {
		return nil, ErrNoUtterance
	}
	// Staged chunks are consumed by this run whatever happens next.
	defer r.chunks.Clear(session)

	_, assembleSpan := observe.StartStage(ctx, "assemble")
	samples, err := r.asm.Assemble(refs)
	assembleSpan.End()
	if err != nil {
		return nil, fmt.Errorf("pipeline: assemble: %w", err)
	}

	text, degraded := r.transcribe(ctx, session, samples, log)
	if text == "" {
		log.Info("speech not understood")
		r.metrics.RecordPipelineRun(ctx, "degraded")
		return &Result{Text: "", Response: notUnderstood, AudioURL: ""}, nil
	}
	log.Info("utterance transcribed", "chars", len(text))

	reply, replyErr := r.complete(ctx, session, text)
	if replyErr != nil {
		degraded = true
	}

	audioURL := ""
	if name, err := r.synthesize(ctx, reply, log); err != nil {
		log.Warn("synthesis failed, returning text only", "error", err)
		r.metrics.RecordProviderError(ctx, "openai", "tts")
		degraded = true
	} else {
		audioURL = "/response/" + name
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	r.metrics.RecordPipelineRun(ctx, status)
	r.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	log.Info("pipeline finished", "status", status, "duration", time.Since(start))

	return &Result{Text: text, Response: reply, AudioURL: audioURL}, nil
}

// transcribe writes the utterance to a transient WAV, runs the STT provider
// and reports whether the stage degraded. A transcription failure is never
// an error to the caller; it collapses to an empty transcript.
func (r *Runner) transcribe(ctx context.Context, session string, samples []int16, log *slog.Logger) (string, bool) {
	ctx, span := observe.StartStage(ctx, "transcribe")
	defer span.End()

	f, err := os.CreateTemp(r.chunks.Root(), "utterance_*.wav")
	if err != nil {
		log.Warn("transcription skipped, cannot stage utterance", "error", err)
		return "", true
	}
	f.Close()
	wavPath := f.Name()
	defer os.Remove(wavPath)

	if err := r.asm.WriteWAV(wavPath, samples); err != nil {
		log.Warn("transcription skipped, cannot write utterance", "error", err)
		return "", true
	}

	start := time.Now()
	text, err := r.stt.Transcribe(ctx, wavPath, r.language)
	r.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		log.Warn("transcription failed, treating as not understood", "error", err)
		span.RecordError(err)
		r.metrics.RecordProviderError(ctx, "openai", "stt")
		return "", true
	}
	return strings.TrimSpace(text), false
}

// complete asks the completion provider for a reply and records the turn.
// On failure the returned reply is a visible error marker; the turn is
// recorded either way so the history mirrors what the client saw.
func (r *Runner) complete(ctx context.Context, session, text string) (string, error) {
	ctx, span := observe.StartStage(ctx, "complete")
	defer span.End()

	conv := r.registry.GetOrCreate(session)
	messages := append(conv.Snapshot(), types.Message{Role: types.RoleUser, Content: text})

	start := time.Now()
	reply, err := r.llm.Complete(ctx, messages)
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		r.logger.Error("completion failed", "session", session, "error", err)
		span.RecordError(err)
		r.metrics.RecordProviderError(ctx, "openai", "llm")
		reply = fmt.Sprintf("[Completion error: %v]", err)
	}
	conv.AppendTurn(text, reply)
	return reply, err
}

// synthesize renders the reply and returns the cached file name.
func (r *Runner) synthesize(ctx context.Context, reply string, log *slog.Logger) (string, error) {
	ctx, span := observe.StartStage(ctx, "synthesize")
	defer span.End()

	id := r.cache.NextID()
	start := time.Now()
	name, err := r.synth.Synthesize(ctx, reply, id)
	r.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	log.Info("reply synthesized", "file", name)
	return name, nil
}

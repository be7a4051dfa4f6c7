// Command voicelay is the voice-assistant relay server. It ingests raw PCM
// audio chunks over HTTP, assembles and transcribes each utterance, asks a
// chat-completion model for a reply, synthesizes the reply as speech and
// serves the resulting WAV back to the client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicelay/voicelay/internal/assemble"
	"github.com/voicelay/voicelay/internal/cache"
	"github.com/voicelay/voicelay/internal/chunkstore"
	"github.com/voicelay/voicelay/internal/config"
	"github.com/voicelay/voicelay/internal/convo"
	"github.com/voicelay/voicelay/internal/health"
	"github.com/voicelay/voicelay/internal/observe"
	"github.com/voicelay/voicelay/internal/pipeline"
	"github.com/voicelay/voicelay/internal/resilience"
	"github.com/voicelay/voicelay/internal/server"
	"github.com/voicelay/voicelay/internal/synth"
	"github.com/voicelay/voicelay/pkg/provider/llm"
	llmopenai "github.com/voicelay/voicelay/pkg/provider/llm/openai"
	sttopenai "github.com/voicelay/voicelay/pkg/provider/stt/openai"
	ttsopenai "github.com/voicelay/voicelay/pkg/provider/tts/openai"
)

// Reply sampling settings. These are product tuning, not user knobs.
var replySampling = llm.SamplingParams{
	Temperature:      0.85,
	TopP:             0.95,
	MaxTokens:        250,
	FrequencyPenalty: 0.3,
	PresencePenalty:  0.4,
}

// providerTimeout bounds one gateway call.
const providerTimeout = 120 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicelay: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicelay: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicelay starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voicelay",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Storage ───────────────────────────────────────────────────────────────
	chunks, err := chunkstore.New(cfg.Storage.ChunkDir)
	if err != nil {
		slog.Error("failed to open chunk store", "err", err)
		return 1
	}
	replyCache, err := cache.New(cfg.Storage.CacheDir, cfg.Storage.ServeThenDelete())
	if err != nil {
		slog.Error("failed to open reply cache", "err", err)
		return 1
	}

	// A previous process may have left staged chunks or unserved replies
	// behind; start from a clean slate.
	now := time.Now()
	if n := chunks.Sweep(now, 0); n > 0 {
		slog.Info("removed leftover chunks", "count", n)
	}
	if n := replyCache.Sweep(now, 0); n > 0 {
		slog.Info("removed leftover replies", "count", n)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	sttProvider, err := sttopenai.New(
		cfg.Providers.STT.APIKey, cfg.Providers.STT.Model,
		sttOptions(cfg.Providers.STT)...,
	)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}
	llmProvider, err := llmopenai.New(
		cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model, replySampling,
		llmOptions(cfg.Providers.LLM)...,
	)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	ttsProvider, err := ttsopenai.New(
		cfg.Providers.TTS.APIKey, cfg.Providers.TTS.Model, cfg.Providers.TTS.Voice,
		ttsOptions(cfg.Providers.TTS)...,
	)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}

	// Each gateway sits behind its own circuit breaker so a dead backend
	// fails fast instead of stalling every utterance.
	guardedSTT := resilience.NewSTT(sttProvider, resilience.BreakerConfig{})
	guardedLLM := resilience.NewLLM(llmProvider, resilience.BreakerConfig{})
	guardedTTS := resilience.NewTTS(ttsProvider, resilience.BreakerConfig{})

	// ── Pipeline ──────────────────────────────────────────────────────────────
	registry := convo.NewRegistry(cfg.Session.SystemPrompt, cfg.Session.MaxTurns)
	asm := assemble.New(cfg.Audio.SampleRate, cfg.Audio.Gain, int16(cfg.Audio.ClipCeiling))
	synthesizer := synth.New(
		guardedTTS, replyCache.Dir(), cfg.Audio.SampleRate,
		cfg.Audio.NormalizeHeadroomDB, cfg.Audio.NormalizeGainDB, cfg.Audio.SpeedRatio,
	)
	runner := pipeline.New(
		chunks, asm, registry, guardedSTT, guardedLLM, synthesizer, replyCache,
		cfg.Session.Language, metrics, logger,
	)

	// ── HTTP surface ──────────────────────────────────────────────────────────
	healthHandler := health.New(
		health.DirWritable("chunk_dir", chunks.Root()),
		health.DirWritable("cache_dir", replyCache.Dir()),
	)
	srv := server.New(chunks, runner, replyCache, registry, healthHandler, metrics, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reaper := cache.NewReaper(
		replyCache, chunks,
		cfg.Storage.Retention.Std(), cfg.Storage.Retention.Std(),
		logger,
	)
	reaper.Swept = func(replies, staged int) {
		metrics.RecordSweep(context.Background(), "cache", replies)
		metrics.RecordSweep(context.Background(), "chunks", staged)
	}

	// ── Run server and reaper under one lifecycle ─────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := reaper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutdown signal received, stopping…")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newLogger builds the process-wide text logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func sttOptions(entry config.ProviderEntry) []sttopenai.Option {
	opts := []sttopenai.Option{sttopenai.WithTimeout(providerTimeout)}
	if entry.BaseURL != "" {
		opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
	}
	return opts
}

func llmOptions(entry config.ProviderEntry) []llmopenai.Option {
	opts := []llmopenai.Option{llmopenai.WithTimeout(providerTimeout)}
	if entry.BaseURL != "" {
		opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
	}
	return opts
}

func ttsOptions(entry config.ProviderEntry) []ttsopenai.Option {
	opts := []ttsopenai.Option{ttsopenai.WithTimeout(providerTimeout)}
	if entry.BaseURL != "" {
		opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
	}
	return opts
}

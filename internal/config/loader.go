package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] before validation. They mirror the
// relay's reference deployment: 16 kHz mono audio, 4× boost, hourly
// retention, and the 1.25× reply speed-up.
const (
	DefaultListenAddr  = ":5000"
	DefaultSampleRate  = 16000
	DefaultGain        = 4.0
	DefaultClipCeiling = 32767
	DefaultHeadroomDB  = 1.0
	DefaultGainDB      = 2.0
	DefaultSpeedRatio  = 1.25
	DefaultLanguage    = "tr"
	DefaultChunkDir    = "temp_chunks"
	DefaultCacheDir    = "tts_cache"
	DefaultRetention   = time.Hour

	DefaultSTTModel = "whisper-1"
	DefaultLLMModel = "gpt-4o-mini"
	DefaultTTSModel = "tts-1"
	DefaultVoice    = "alloy"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the reference deployment values.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Gain == 0 {
		cfg.Audio.Gain = DefaultGain
	}
	if cfg.Audio.ClipCeiling == 0 {
		cfg.Audio.ClipCeiling = DefaultClipCeiling
	}
	if cfg.Audio.NormalizeHeadroomDB == 0 {
		cfg.Audio.NormalizeHeadroomDB = DefaultHeadroomDB
	}
	if cfg.Audio.NormalizeGainDB == 0 {
		cfg.Audio.NormalizeGainDB = DefaultGainDB
	}
	if cfg.Audio.SpeedRatio == 0 {
		cfg.Audio.SpeedRatio = DefaultSpeedRatio
	}
	if cfg.Session.Language == "" {
		cfg.Session.Language = DefaultLanguage
	}
	if cfg.Providers.STT.Model == "" {
		cfg.Providers.STT.Model = DefaultSTTModel
	}
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = DefaultLLMModel
	}
	if cfg.Providers.TTS.Model == "" {
		cfg.Providers.TTS.Model = DefaultTTSModel
	}
	if cfg.Providers.TTS.Voice == "" {
		cfg.Providers.TTS.Voice = DefaultVoice
	}
	if cfg.Storage.ChunkDir == "" {
		cfg.Storage.ChunkDir = DefaultChunkDir
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = DefaultCacheDir
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = Duration(DefaultRetention)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 48000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Gain < 0 {
		errs = append(errs, fmt.Errorf("audio.gain %.2f must not be negative", cfg.Audio.Gain))
	}
	if cfg.Audio.ClipCeiling < 1 || cfg.Audio.ClipCeiling > 32767 {
		errs = append(errs, fmt.Errorf("audio.clip_ceiling %d is out of range [1, 32767]", cfg.Audio.ClipCeiling))
	}
	if cfg.Audio.SpeedRatio < 0.5 || cfg.Audio.SpeedRatio > 2.0 {
		errs = append(errs, fmt.Errorf("audio.speed_ratio %.2f is out of range [0.5, 2.0]", cfg.Audio.SpeedRatio))
	}

	if cfg.Session.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("session.max_turns %d must not be negative", cfg.Session.MaxTurns))
	}

	if cfg.Storage.Retention.Std() < time.Second {
		errs = append(errs, fmt.Errorf("storage.retention %s is shorter than one second", cfg.Storage.Retention))
	}
	if cfg.Storage.ChunkDir == cfg.Storage.CacheDir {
		errs = append(errs, fmt.Errorf("storage.chunk_dir and storage.cache_dir must differ (both %q)", cfg.Storage.ChunkDir))
	}

	// Soft issues: the server still starts, gateways degrade per policy.
	if cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt.api_key is empty; transcription will degrade to empty text")
	}
	if cfg.Providers.LLM.APIKey == "" {
		slog.Warn("providers.llm.api_key is empty; completions will surface error replies")
	}
	if cfg.Providers.TTS.APIKey == "" {
		slog.Warn("providers.tts.api_key is empty; replies will carry no audio URL")
	}
	if cfg.Session.SystemPrompt == "" {
		slog.Warn("session.system_prompt is empty; the assistant has no persona seed")
	}

	return errors.Join(errs...)
}

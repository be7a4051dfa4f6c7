// Package config provides the configuration schema and loader for the
// voicelay relay server. Configuration is loaded once at startup and is
// immutable for the life of the process.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML as either a Go
// duration string ("30m", "1h") or a bare number of seconds.
type Duration time.Duration

// Std returns the value as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements [fmt.Stringer].
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("config: invalid duration value %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// LogLevel controls log verbosity for the relay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voicelay.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":5000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the signal-conditioning parameters applied to
// assembled utterances and synthesized replies.
type AudioConfig struct {
	// SampleRate is the PCM sample rate in Hz for both the assembled
	// utterance WAV and the synthesized reply WAV.
	SampleRate int `yaml:"sample_rate"`

	// Gain is the multiplicative volume boost applied when assembling
	// utterance chunks.
	Gain float64 `yaml:"gain"`

	// ClipCeiling is the symmetric sample magnitude limit applied after
	// the gain boost. Must fit in a signed 16-bit sample.
	ClipCeiling int `yaml:"clip_ceiling"`

	// NormalizeHeadroomDB is the headroom (in dB below full scale) the
	// synthesized reply is peak-normalised to before export.
	NormalizeHeadroomDB float64 `yaml:"normalize_headroom_db"`

	// NormalizeGainDB is the additive make-up gain (in dB) applied to the
	// synthesized reply after normalisation.
	NormalizeGainDB float64 `yaml:"normalize_gain_db"`

	// SpeedRatio is the playback-rate multiplier applied to synthesized
	// replies. Values above 1 produce faster, higher-pitched speech.
	SpeedRatio float64 `yaml:"speed_ratio"`
}

// SessionConfig holds conversation-state settings.
type SessionConfig struct {
	// SystemPrompt seeds every conversation as the immutable first message.
	SystemPrompt string `yaml:"system_prompt"`

	// Language is the BCP-47 hint forwarded to transcription (e.g., "tr", "en").
	Language string `yaml:"language"`

	// MaxTurns bounds the retained user/assistant turn pairs per session.
	// 0 keeps the full history for the process lifetime.
	MaxTurns int `yaml:"max_turns"`
}

// ProvidersConfig declares the external gateway backends.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all gateway types.
type ProviderEntry struct {
	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "whisper-1", "gpt-4o-mini", "tts-1").
	Model string `yaml:"model"`

	// Voice selects the synthesis voice. Only meaningful for TTS.
	Voice string `yaml:"voice"`
}

// StorageConfig holds the filesystem layout and eviction policy.
type StorageConfig struct {
	// ChunkDir holds in-flight raw audio chunks for the current utterances.
	ChunkDir string `yaml:"chunk_dir"`

	// CacheDir holds synthesized reply WAVs and transient intermediates.
	CacheDir string `yaml:"cache_dir"`

	// Retention is how long a cached reply (or abandoned chunk) may live
	// before the reaper removes it. Also the sweep period.
	Retention Duration `yaml:"retention"`

	// DeleteAfterServe removes a reply file once it has been fully
	// streamed to a client. When nil, the flag defaults to enabled.
	DeleteAfterServe *bool `yaml:"delete_after_serve"`
}

// ServeThenDelete reports whether served reply files are removed after the
// transfer completes. Defaults to true when the flag is absent.
func (s StorageConfig) ServeThenDelete() bool {
	return s.DeleteAfterServe == nil || *s.DeleteAfterServe
}

// Package config loads assistant configuration from a YAML file merged
// with environment variables. Credentials live only in the environment;
// the YAML file holds tunables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Env variable names read by Load.
const (
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvBackendURL    = "BACKEND_WS_URL"
	EnvBackendKey    = "BACKEND_API_KEY"
)

// Config is the root assistant configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Audio     AudioConfig     `yaml:"audio"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Languages LanguageConfig  `yaml:"languages"`
	ASR       ASRConfig       `yaml:"asr"`
	Backend   BackendConfig   `yaml:"backend"`
	TTS       TTSConfig       `yaml:"tts"`
}

// AudioConfig holds capture and playback parameters.
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	BlockSize  int    `yaml:"block_size"`
	Device     string `yaml:"device"`
	// QueueSeconds sizes the capture queue. The producer blocks when the
	// queue fills, so this bounds how far the consumer may fall behind.
	QueueSeconds float64 `yaml:"queue_seconds"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "750ms" or "1s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SegmenterConfig holds silence-detection parameters.
type SegmenterConfig struct {
	SilenceThreshold     float64  `yaml:"silence_threshold"`
	SilenceDuration      Duration `yaml:"silence_duration"`
	MinUtteranceDuration Duration `yaml:"min_utterance_duration"`
}

// LanguageConfig holds language detection parameters.
type LanguageConfig struct {
	Default     string   `yaml:"default"`
	Supported   []string `yaml:"supported"`
	HistorySize int      `yaml:"detection_history_size"`
}

// ASRConfig selects and parameterizes the transcription provider.
type ASRConfig struct {
	// Provider is "elevenlabs", "elevenlabs-rest", "whisper", or "stub".
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	Language  string   `yaml:"language"`
	Languages []string `yaml:"languages"`
	APIKey    string   `yaml:"-"`
}

// BackendConfig parameterizes the conversational backend connection.
type BackendConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"-"`
	// PacingDelay is inserted between released text chunks for a smooth
	// perceived stream. Zero disables pacing.
	PacingDelay Duration `yaml:"pacing_delay"`
	// ChunkWords is the word count above which a line is further split
	// on sentence boundaries.
	ChunkWords int `yaml:"chunk_words"`
}

// TTSConfig selects and parameterizes the synthesis provider.
type TTSConfig struct {
	// Provider is "elevenlabs", "openai", or "stub".
	Provider string `yaml:"provider"`
	VoiceID  string `yaml:"voice_id"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:   16000,
			Channels:     1,
			BlockSize:    1024,
			QueueSeconds: 5,
		},
		Segmenter: SegmenterConfig{
			SilenceThreshold:     500,
			SilenceDuration:      Duration(time.Second),
			MinUtteranceDuration: Duration(500 * time.Millisecond),
		},
		Languages: LanguageConfig{
			Default:     "en",
			Supported:   []string{"en", "hi", "hi-en"},
			HistorySize: 5,
		},
		ASR: ASRConfig{
			Provider:  "elevenlabs",
			Model:     "scribe_v1",
			Language:  "auto",
			Languages: []string{"en", "hi"},
		},
		Backend: BackendConfig{
			PacingDelay: Duration(time.Second),
			ChunkWords:  10,
		},
		TTS: TTSConfig{
			Provider: "elevenlabs",
			VoiceID:  "EXAVITQu4vr4xnSDxMaL",
			Model:    "eleven_monolingual_v1",
		},
	}
}

// Load reads the YAML file at path (if it exists), overlays environment
// variables, and validates the result. A missing file is not an error;
// missing required credentials for a selected live provider is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.ASR.APIKey = apiKeyFor(cfg.ASR.Provider)
	cfg.TTS.APIKey = apiKeyFor(cfg.TTS.Provider)
	if url := os.Getenv(EnvBackendURL); url != "" {
		cfg.Backend.URL = url
	}
	cfg.Backend.APIKey = os.Getenv(EnvBackendKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apiKeyFor(provider string) string {
	switch provider {
	case "elevenlabs", "elevenlabs-rest":
		return os.Getenv(EnvElevenLabsKey)
	case "whisper", "openai":
		return os.Getenv(EnvOpenAIKey)
	default:
		return ""
	}
}

// Validate fails fast on configurations that would otherwise degrade
// silently at runtime.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("config: only mono capture is supported, got %d channels", c.Audio.Channels)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("config: block_size must be positive, got %d", c.Audio.BlockSize)
	}
	if c.Segmenter.SilenceDuration <= 0 {
		return fmt.Errorf("config: silence_duration must be positive, got %v", c.Segmenter.SilenceDuration.Std())
	}
	if c.ASR.Provider != "stub" && c.ASR.APIKey == "" {
		return fmt.Errorf("config: ASR provider %q selected but %s is not set", c.ASR.Provider, envNameFor(c.ASR.Provider))
	}
	if c.TTS.Provider != "stub" && c.TTS.APIKey == "" {
		return fmt.Errorf("config: TTS provider %q selected but %s is not set", c.TTS.Provider, envNameFor(c.TTS.Provider))
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("config: backend URL required, set %s or backend.url", EnvBackendURL)
	}
	return nil
}

func envNameFor(provider string) string {
	switch provider {
	case "elevenlabs", "elevenlabs-rest":
		return EnvElevenLabsKey
	case "whisper", "openai":
		return EnvOpenAIKey
	default:
		return "(unknown provider)"
	}
}

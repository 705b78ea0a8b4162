package asr

import (
	"log/slog"
	"time"
)

// Config holds speech-to-text provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey  string
	BaseURL string

	// Recognition configuration
	ModelID string

	// Language is the hint sent to the provider. "auto" lets the
	// provider detect the spoken language.
	Language string

	// Languages restricts auto-detection to this set, if the
	// provider supports it.
	Languages []string

	// SampleRate of the utterance audio in Hz.
	SampleRate int

	// Timeouts
	Timeout       time.Duration
	StreamTimeout time.Duration

	// Retry configuration for opening a stream. Mid-stream failures
	// are never retried; they surface as a terminal error event.
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring ASR providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the recognition model ID.
func WithModel(modelID string) Option {
	return func(c *Config) {
		c.ModelID = modelID
	}
}

// WithLanguage sets the language hint ("auto" for detection).
func WithLanguage(code string) Option {
	return func(c *Config) {
		c.Language = code
	}
}

// WithLanguages restricts auto-detection to a set of languages.
func WithLanguages(codes []string) Option {
	return func(c *Config) {
		c.Languages = codes
	}
}

// WithSampleRate sets the utterance audio sample rate in Hz.
func WithSampleRate(hz int) Option {
	return func(c *Config) {
		c.SampleRate = hz
	}
}

// WithTimeout sets the request timeout for non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithStreamTimeout sets the total timeout for a streaming session.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.StreamTimeout = d
	}
}

// WithRetries sets the retry count and delay for opening a stream.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger for provider diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ModelID:       "scribe_v1",
		Language:      "auto",
		Languages:     []string{"en", "hi"},
		SampleRate:    16000,
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		MaxRetries:    2,
		RetryDelay:    500 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

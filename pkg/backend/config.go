package backend

import (
	"log/slog"
	"time"
)

// Config holds backend client configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// URL is the backend WebSocket endpoint.
	URL string

	// APIKey is appended as an api-key query parameter when set.
	APIKey string

	// PacingDelay is the fixed delay between released reply pieces.
	PacingDelay time.Duration

	// ChunkWords is the word-count threshold above which a reply
	// line is split at sentence boundaries.
	ChunkWords int

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration

	// Logger for client diagnostics.
	Logger *slog.Logger
}

// Option is a functional option for configuring the backend client.
type Option func(*Config)

// WithAPIKey sets the api-key query parameter.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithPacingDelay sets the inter-chunk release delay.
func WithPacingDelay(d time.Duration) Option {
	return func(c *Config) {
		c.PacingDelay = d
	}
}

// WithChunkWords sets the sentence-split word threshold.
func WithChunkWords(n int) Option {
	return func(c *Config) {
		c.ChunkWords = n
	}
}

// WithHandshakeTimeout sets the dial timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PacingDelay:      time.Second,
		ChunkWords:       10,
		HandshakeTimeout: 10 * time.Second,
		Logger:           slog.Default(),
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

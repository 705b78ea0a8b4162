package tts

import (
	"context"
	"log/slog"
)

// Chain tries providers in order until one succeeds. Put the streaming
// provider first and the degraded stub last so a turn always produces
// audio, even if it is empty.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a provider chain. At least one provider is
// required.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrAllProvidersFailed
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// StreamText opens a stream on the first provider that accepts it.
// Failures after the stream opened are not retried; replaying a
// partially synthesized reply would repeat audio.
func (c *Chain) StreamText(ctx context.Context, texts <-chan string) (<-chan []byte, error) {
	var lastErr error
	for i, p := range c.providers {
		audio, err := p.StreamText(ctx, texts)
		if err == nil {
			if i > 0 {
				c.logger.Warn("fell back to secondary provider", "index", i)
			}
			return audio, nil
		}
		lastErr = err
		c.logger.Warn("provider rejected stream", "index", i, "error", err)
	}
	return nil, lastErr
}

// Synthesize converts text with the first provider that succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var lastErr error
	for i, p := range c.providers {
		audio, err := p.Synthesize(ctx, text)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		c.logger.Warn("synthesis failed, trying next provider", "index", i, "error", err)
	}
	return nil, lastErr
}

// Health reports healthy if any provider is healthy.
// Format reports the primary provider's output encoding. Fallback
// providers are expected to match it.
func (c *Chain) Format() Encoding {
	return FormatOf(c.providers[0])
}

func (c *Chain) Health(ctx context.Context) error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.Health(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes every provider, returning the first error.
func (c *Chain) Close() error {
	var first error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Provider = (*Chain)(nil)

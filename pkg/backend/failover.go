package backend

import (
	"context"
	"log/slog"
)

// Failover wraps a live client with the canned-reply fallback. A turn
// that fails before producing any reply text is transparently replayed
// through the fallback, so the conversation never goes silent when the
// backend is unreachable. A turn that fails after partial text has
// been delivered keeps its error; switching replies mid-stream would
// contradict text already shown to the user.
type Failover struct {
	primary  Streamer
	fallback Streamer
	logger   *slog.Logger
}

// NewFailover creates the failover streamer.
func NewFailover(primary, fallback Streamer, logger *slog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With("component", "backend.failover"),
	}
}

// StreamMessage tries the live backend first.
func (f *Failover) StreamMessage(ctx context.Context, req Request) (<-chan Chunk, error) {
	chunks, err := f.primary.StreamMessage(ctx, req)
	if err != nil {
		f.logger.Warn("backend unreachable, serving fallback", "error", err)
		return f.fallback.StreamMessage(ctx, req)
	}

	out := make(chan Chunk, 8)
	go func() {
		defer close(out)

		delivered := false
		for chunk := range chunks {
			if chunk.Kind == KindError && !delivered {
				f.logger.Warn("backend failed before reply, serving fallback", "error", chunk.Err)
				f.relayFallback(ctx, req, out)
				return
			}
			if chunk.Kind == KindPartial || chunk.Kind == KindFinal {
				delivered = true
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *Failover) relayFallback(ctx context.Context, req Request, out chan<- Chunk) {
	chunks, err := f.fallback.StreamMessage(ctx, req)
	if err != nil {
		out <- errorChunk(err)
		return
	}
	for chunk := range chunks {
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}
}

// Close closes both streamers, returning the first error.
func (f *Failover) Close() error {
	err := f.primary.Close()
	if cerr := f.fallback.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

var _ Streamer = (*Failover)(nil)

// Package backend streams conversation turns to the lending assistant
// backend over a message-framed WebSocket connection.
//
// One Client keeps a persistent connection across turns. Each turn is a
// single outgoing frame answered by a sequence of partial-text frames
// and one terminal frame. Because the backend's partials can arrive as
// large multi-line bursts, the client re-chunks them into line- and
// sentence-sized pieces and releases those with a fixed pacing delay,
// so callers see a smooth stream regardless of how bursty the backend
// is.
//
// When no backend is reachable the Fallback streamer produces canned
// topic-matched replies through the same interface.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNoURL is returned when the backend URL is missing.
	ErrNoURL = errors.New("backend: URL required")

	// ErrClosed is returned when using a closed client.
	ErrClosed = errors.New("backend: client closed")

	// ErrTurnInFlight is returned when a turn is started while the
	// previous one is still streaming.
	ErrTurnInFlight = errors.New("backend: turn already in flight")
)

// ChunkKind discriminates stream chunks.
type ChunkKind string

const (
	// KindPartial is an intermediate text piece of the reply.
	KindPartial ChunkKind = "partial"

	// KindFinal carries the complete reply text. Emitted exactly
	// once per turn, always last on a successful stream.
	KindFinal ChunkKind = "final"

	// KindError terminates the stream after a failure.
	KindError ChunkKind = "error"
)

// Chunk is one element of a turn's reply stream.
type Chunk struct {
	Kind ChunkKind

	// Text is the partial piece or, on KindFinal, the full reply.
	Text string

	// SessionID is the backend's session identifier when the server
	// included one.
	SessionID string

	// Err is set on KindError chunks.
	Err error
}

// HistoryTurn is one prior conversation turn sent with a request.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one user turn to send to the backend.
type Request struct {
	// Text is the user's message.
	Text string

	// SessionID is the backend session to continue, if known.
	SessionID string

	// History is the prior conversation, oldest first.
	History []HistoryTurn
}

// Streamer produces a reply stream for a user turn. Implemented by the
// live Client and the offline Fallback.
type Streamer interface {
	// StreamMessage sends one turn and returns its reply stream.
	// The channel carries zero or more partial chunks followed by
	// exactly one terminal chunk (final or error), then closes.
	StreamMessage(ctx context.Context, req Request) (<-chan Chunk, error)

	// Close releases the streamer's resources.
	Close() error
}

func errorChunk(err error) Chunk {
	return Chunk{Kind: KindError, Err: err}
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("backend: %s: %w", op, err)
}

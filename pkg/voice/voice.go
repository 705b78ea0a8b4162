// Package voice wires the full conversation pipeline: audio capture,
// utterance segmentation, speech recognition, language detection,
// session history, the backend reply stream, speech synthesis, and
// playback.
//
// The pipeline runs in two modes. In voice mode Start drives the
// microphone continuously and every detected utterance becomes a
// conversation turn. In text mode Converse runs a single turn from
// typed text. Both modes emit the turn's progress as a stream of
// chunks: transcripts, paced reply text, synthesized audio, and at
// most one terminal error.
package voice

import "errors"

// Common errors returned by pipelines.
var (
	ErrAlreadyStarted = errors.New("voice: pipeline already started")
	ErrNotStarted     = errors.New("voice: pipeline not started")
	ErrStopped        = errors.New("voice: pipeline stopped")
)

// ChunkKind discriminates pipeline stream chunks.
type ChunkKind string

const (
	// KindTranscript is a recognition update for the user's speech.
	KindTranscript ChunkKind = "transcript"

	// KindPartialText is a paced piece of the assistant's reply.
	KindPartialText ChunkKind = "partial_text"

	// KindFinalText carries the assistant's complete reply. Emitted
	// exactly once per successful turn.
	KindFinalText ChunkKind = "final_text"

	// KindAudio is a chunk of synthesized reply audio.
	KindAudio ChunkKind = "audio"

	// KindError terminates a turn after a failure.
	KindError ChunkKind = "error"
)

// StreamChunk is one element of a turn's progress stream.
type StreamChunk struct {
	Kind ChunkKind

	// Seq orders chunks within one turn, starting at 0.
	Seq int

	// Text holds transcript or reply text for text-bearing kinds.
	Text string

	// IsFinal marks the last transcript event of an utterance.
	IsFinal bool

	// Language is the detected language code on transcript chunks.
	Language string

	// Audio holds PCM16 bytes on KindAudio chunks.
	Audio []byte

	// SessionID identifies the conversation the chunk belongs to.
	SessionID string

	// Err is set on KindError chunks.
	Err error
}

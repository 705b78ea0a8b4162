package asr

import (
	"context"

	"github.com/lenddesk/voicepipe/pkg/segment"
)

// StubTranscript is the fixed text the degraded provider returns.
const StubTranscript = "This is a demo transcription as the ASR module is not available."

// Stub is the degraded speech-to-text provider used when no live
// provider is configured. Every utterance yields a single final event
// with fixed text, so the rest of the pipeline still produces a turn.
type Stub struct{}

// NewStub creates the degraded STT provider.
func NewStub() *Stub {
	return &Stub{}
}

// Transcribe emits one synthetic final event.
func (s *Stub) Transcribe(ctx context.Context, utt *segment.Utterance) (<-chan TranscriptEvent, error) {
	if utt == nil || len(utt.Frames) == 0 {
		return nil, ErrEmptyUtterance
	}

	events := make(chan TranscriptEvent, 1)
	events <- finalEvent(utt.ID, StubTranscript, "", 0)
	close(events)
	return events, nil
}

// Health always reports healthy.
func (s *Stub) Health(ctx context.Context) error {
	return nil
}

// Close releases nothing.
func (s *Stub) Close() error {
	return nil
}

var _ Provider = (*Stub)(nil)

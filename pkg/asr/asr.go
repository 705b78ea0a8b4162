// Package asr provides a unified interface for speech-to-text providers.
//
// Providers consume a complete segmented utterance and emit a stream of
// transcript events: zero or more partials followed by exactly one final
// event. All implementations satisfy the Provider interface so callers
// can switch backends without code changes.
//
// Example usage:
//
//	provider, _ := asr.NewElevenLabsWS(
//	    asr.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	)
//	defer provider.Close()
//
//	events, _ := provider.Transcribe(ctx, utterance)
//	for ev := range events {
//	    // ev.Text grows monotonically until ev.IsFinal
//	}
package asr

import (
	"context"

	"github.com/lenddesk/voicepipe/pkg/segment"
)

// Provider defines the speech-to-text provider interface.
type Provider interface {
	// Transcribe converts one utterance to text. The returned channel
	// carries zero or more partial events followed by exactly one
	// terminal event (final transcript or error), then closes. The
	// Text of successive events never shrinks.
	Transcribe(ctx context.Context, utt *segment.Utterance) (<-chan TranscriptEvent, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// TranscriptEvent is one recognition update for an utterance.
type TranscriptEvent struct {
	// UtteranceID links the event back to the segmented utterance.
	UtteranceID string

	// Text is the transcript so far. For successive events of one
	// utterance it is non-decreasing in length.
	Text string

	// IsFinal marks the last successful event for the utterance.
	IsFinal bool

	// LanguageCode is the provider-reported language, if any.
	LanguageCode string

	// Confidence is the provider-reported confidence in [0,1],
	// or 0 when not reported.
	Confidence float64

	// Err is set on the terminal event when recognition failed.
	// An event with Err set carries no transcript.
	Err error
}

// finalEvent builds the terminal success event for an utterance.
func finalEvent(utteranceID, text, lang string, confidence float64) TranscriptEvent {
	return TranscriptEvent{
		UtteranceID:  utteranceID,
		Text:         text,
		IsFinal:      true,
		LanguageCode: lang,
		Confidence:   confidence,
	}
}

// errorEvent builds the terminal failure event for an utterance.
func errorEvent(utteranceID string, err error) TranscriptEvent {
	return TranscriptEvent{UtteranceID: utteranceID, Err: err}
}

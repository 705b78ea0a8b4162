package voice

import (
	"errors"
	"log/slog"

	"github.com/lenddesk/voicepipe/pkg/asr"
	"github.com/lenddesk/voicepipe/pkg/audioio"
	"github.com/lenddesk/voicepipe/pkg/backend"
	"github.com/lenddesk/voicepipe/pkg/segment"
	"github.com/lenddesk/voicepipe/pkg/session"
	"github.com/lenddesk/voicepipe/pkg/tts"
)

// Config holds the pipeline's collaborators and tuning.
type Config struct {
	// Source captures microphone audio. Required for voice mode,
	// ignored by Converse.
	Source audioio.Source

	// Sink plays synthesized audio. Optional; without a sink the
	// audio chunks are still delivered on the event stream.
	Sink audioio.Sink

	// Segmenter tuning for utterance detection.
	Segmenter segment.Config

	// Recognizer transcribes utterances. Required for voice mode.
	Recognizer asr.Provider

	// Synthesizer produces reply audio. Required.
	Synthesizer tts.Provider

	// Backend streams assistant replies. Required.
	Backend backend.Streamer

	// Sessions stores conversation state. Required.
	Sessions *session.Store

	// SessionID resumes an existing conversation when set; a new
	// session is created otherwise.
	SessionID string

	// SendHistory includes prior turns in each backend request.
	SendHistory bool

	// Logger for pipeline diagnostics.
	Logger *slog.Logger
}

// Validate checks that the required collaborators are present.
func (c *Config) Validate() error {
	if c.Synthesizer == nil {
		return errors.New("voice: synthesizer required")
	}
	if c.Backend == nil {
		return errors.New("voice: backend required")
	}
	if c.Sessions == nil {
		return errors.New("voice: session store required")
	}
	return nil
}

// validateVoiceMode adds the capture-path requirements.
func (c *Config) validateVoiceMode() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Source == nil {
		return errors.New("voice: audio source required")
	}
	if c.Recognizer == nil {
		return errors.New("voice: recognizer required")
	}
	return nil
}

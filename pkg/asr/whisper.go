package asr

import (
	"bytes"
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lenddesk/voicepipe/internal/httpc"
	"github.com/lenddesk/voicepipe/pkg/audioio"
	"github.com/lenddesk/voicepipe/pkg/segment"
)

// Whisper implements speech-to-text using the OpenAI transcription API.
// Like the batch ElevenLabs provider it has no partial results; each
// utterance yields a single final event.
type Whisper struct {
	config *Config
	client *openai.Client
}

// NewWhisper creates an OpenAI Whisper STT provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.ModelID = openai.Whisper1
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Logger = cfg.Logger.With("component", "asr.whisper")

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.HTTPClient = httpc.NewClient(cfg.Timeout)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Whisper{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Transcribe uploads the utterance and emits one final event.
func (w *Whisper) Transcribe(ctx context.Context, utt *segment.Utterance) (<-chan TranscriptEvent, error) {
	if utt == nil || len(utt.Frames) == 0 {
		return nil, ErrEmptyUtterance
	}

	events := make(chan TranscriptEvent, 1)
	go func() {
		defer close(events)

		ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()

		req := openai.AudioRequest{
			Model:    w.config.ModelID,
			FilePath: "utterance.wav",
			Reader:   bytes.NewReader(audioio.EncodeWAV(utt.Samples(), utt.SampleRate)),
			Format:   openai.AudioResponseFormatVerboseJSON,
		}
		// Whisper has no "auto" hint; omitting the language enables
		// detection.
		if w.config.Language != "" && w.config.Language != "auto" {
			req.Language = w.config.Language
		}

		start := time.Now()
		resp, err := w.client.CreateTranscription(ctx, req)
		if err != nil {
			events <- errorEvent(utt.ID, fmt.Errorf("asr: whisper transcription: %w", err))
			return
		}

		w.config.Logger.Debug("transcribed utterance",
			"utterance_id", utt.ID,
			"chars", len(resp.Text),
			"language", resp.Language,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		events <- finalEvent(utt.ID, resp.Text, resp.Language, 0)
	}()
	return events, nil
}

// Health lists models to verify connectivity and credentials.
func (w *Whisper) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if _, err := w.client.ListModels(ctx); err != nil {
		return fmt.Errorf("asr: whisper health: %w", err)
	}
	return nil
}

// Close releases provider resources.
func (w *Whisper) Close() error {
	return nil
}

var _ Provider = (*Whisper)(nil)

package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lenddesk/voicepipe/internal/httpc"
	"github.com/lenddesk/voicepipe/pkg/audioio"
	"github.com/lenddesk/voicepipe/pkg/segment"
)

const (
	elevenLabsRESTBaseURL = "https://api.elevenlabs.io/v1"
	providerElevenLabs    = "elevenlabs"
)

// ElevenLabsREST implements speech-to-text over the batch HTTP API.
// It uploads the whole utterance as a WAV file and emits a single
// final event, so it trades partial results for a simpler transport.
// Use it where the streaming endpoint is unavailable.
type ElevenLabsREST struct {
	config  *Config
	client  *http.Client
	baseURL string
}

// NewElevenLabsREST creates an HTTP-based ElevenLabs STT provider.
func NewElevenLabsREST(opts ...Option) (*ElevenLabsREST, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsRESTBaseURL
	}
	cfg.Logger = cfg.Logger.With("component", "asr.elevenlabs_rest")

	return &ElevenLabsREST{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		baseURL: baseURL,
	}, nil
}

type restResult struct {
	Text         string  `json:"text"`
	LanguageCode string  `json:"language_code"`
	Confidence   float64 `json:"language_probability"`
}

// Transcribe uploads the utterance and emits one final event.
func (e *ElevenLabsREST) Transcribe(ctx context.Context, utt *segment.Utterance) (<-chan TranscriptEvent, error) {
	if utt == nil || len(utt.Frames) == 0 {
		return nil, ErrEmptyUtterance
	}

	events := make(chan TranscriptEvent, 1)
	go func() {
		defer close(events)

		start := time.Now()
		result, err := e.transcribe(ctx, utt)
		if err != nil {
			events <- errorEvent(utt.ID, err)
			return
		}

		e.config.Logger.Debug("transcribed utterance",
			"utterance_id", utt.ID,
			"chars", len(result.Text),
			"language", result.LanguageCode,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		events <- finalEvent(utt.ID, result.Text, result.LanguageCode, result.Confidence)
	}()
	return events, nil
}

func (e *ElevenLabsREST) transcribe(ctx context.Context, utt *segment.Utterance) (*restResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("asr: build form: %w", err)
	}
	if _, err := part.Write(audioio.EncodeWAV(utt.Samples(), utt.SampleRate)); err != nil {
		return nil, fmt.Errorf("asr: write audio: %w", err)
	}

	fields := map[string]string{
		"model_id": e.config.ModelID,
		"language": e.config.Language,
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("asr: write field %s: %w", name, err)
		}
	}
	for _, lang := range e.config.Languages {
		if err := w.WriteField("languages[]", lang); err != nil {
			return nil, fmt.Errorf("asr: write field languages[]: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("asr: finalize form: %w", err)
	}

	url := e.baseURL + "/speech-to-text"
	req, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return nil, fmt.Errorf("asr: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asr: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Provider:   providerElevenLabs,
		}
	}

	var result restResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("asr: decode response: %w", err)
	}
	return &result, nil
}

// Health probes the API with an authenticated GET.
func (e *ElevenLabsREST) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/user", nil)
	if err != nil {
		return fmt.Errorf("asr: create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("asr: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "health check failed", Provider: providerElevenLabs}
	}
	return nil
}

// Close releases provider resources.
func (e *ElevenLabsREST) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

var _ Provider = (*ElevenLabsREST)(nil)

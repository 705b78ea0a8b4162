package asr

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lenddesk/voicepipe/pkg/segment"
)

const (
	elevenLabsWSBaseURL = "wss://api.elevenlabs.io/v1/speech-to-text/stream"

	// audioChunkBytes is the size of each binary frame sent upstream.
	// 8000 bytes is 250ms of 16kHz mono PCM16.
	audioChunkBytes = 8000
)

// ElevenLabsWS implements streaming speech-to-text over WebSocket.
// Each Transcribe call opens a fresh connection scoped to one
// utterance: handshake, binary audio, then an end-of-audio marker.
type ElevenLabsWS struct {
	config *Config
	closed atomic.Bool
}

// NewElevenLabsWS creates a WebSocket-based ElevenLabs STT provider.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsWSBaseURL
	}
	cfg.Logger = cfg.Logger.With("component", "asr.elevenlabs_ws")

	return &ElevenLabsWS{config: cfg}, nil
}

// handshake is the first JSON frame on a new connection.
type handshake struct {
	APIKey     string   `json:"xi_api_key"`
	SampleRate int      `json:"sample_rate"`
	Language   string   `json:"language"`
	ModelID    string   `json:"model_id,omitempty"`
	Languages  []string `json:"languages,omitempty"`
}

// sttMessage is a server frame. Exactly one of Transcript or Error is
// meaningful per frame.
type sttMessage struct {
	Transcript   string  `json:"transcript"`
	IsFinal      bool    `json:"is_final"`
	LanguageCode string  `json:"language_code"`
	Confidence   float64 `json:"confidence"`
	Error        string  `json:"error"`
}

// Transcribe streams the utterance audio and relays recognition events.
func (e *ElevenLabsWS) Transcribe(ctx context.Context, utt *segment.Utterance) (<-chan TranscriptEvent, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if utt == nil || len(utt.Frames) == 0 {
		return nil, ErrEmptyUtterance
	}

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	events := make(chan TranscriptEvent, 8)
	go e.run(ctx, conn, utt, events)
	return events, nil
}

// dial opens the connection and sends the handshake, retrying transient
// failures up to the configured attempt budget.
func (e *ElevenLabsWS) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			e.config.Logger.Warn("retrying connection",
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-time.After(e.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		conn, resp, err := dialer.DialContext(ctx, e.config.BaseURL, http.Header{})
		if err != nil {
			if resp != nil {
				lastErr = &APIError{StatusCode: resp.StatusCode, Message: err.Error(), Provider: "elevenlabs"}
			} else {
				lastErr = fmt.Errorf("websocket dial: %w", err)
			}
			continue
		}

		hs := handshake{
			APIKey:     e.config.APIKey,
			SampleRate: e.config.SampleRate,
			Language:   e.config.Language,
			ModelID:    e.config.ModelID,
			Languages:  e.config.Languages,
		}
		if err := conn.WriteJSON(hs); err != nil {
			conn.Close()
			lastErr = fmt.Errorf("send handshake: %w", err)
			continue
		}
		return conn, nil
	}
	return nil, lastErr
}

// run drives one utterance-scoped session. The writer streams audio in
// fixed chunks followed by the end-of-audio marker; the reader relays
// transcript frames until the final one. A mid-stream failure produces
// exactly one terminal error event.
func (e *ElevenLabsWS) run(ctx context.Context, conn *websocket.Conn, utt *segment.Utterance, events chan<- TranscriptEvent) {
	defer close(events)
	defer conn.Close()

	if e.config.StreamTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(e.config.StreamTimeout))
	}

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- e.sendAudio(ctx, conn, utt.Bytes())
	}()

	// Partial text never regresses. A provider frame shorter than
	// what we already relayed is dropped; a final frame without text
	// is substituted with the accumulated transcript.
	var accumulated string

	for {
		var msg sttMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case werr := <-writeErr:
				if werr != nil {
					err = werr
				}
			default:
			}
			events <- errorEvent(utt.ID, fmt.Errorf("asr: stream read: %w", err))
			return
		}

		if msg.Error != "" {
			events <- errorEvent(utt.ID, &APIError{Message: msg.Error, Provider: "elevenlabs"})
			return
		}

		text := msg.Transcript
		if len(text) < len(accumulated) {
			if !msg.IsFinal {
				continue
			}
			text = accumulated
		}
		accumulated = text

		if msg.IsFinal {
			events <- finalEvent(utt.ID, text, msg.LanguageCode, msg.Confidence)
			return
		}
		events <- TranscriptEvent{
			UtteranceID:  utt.ID,
			Text:         text,
			LanguageCode: msg.LanguageCode,
			Confidence:   msg.Confidence,
		}
	}
}

// sendAudio writes the utterance as binary frames and the end marker.
func (e *ElevenLabsWS) sendAudio(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += audioChunkBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + audioChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
	if err := conn.WriteJSON(map[string]bool{"eof": true}); err != nil {
		return fmt.Errorf("send eof: %w", err)
	}
	return nil
}

// Health dials and immediately closes a connection to verify
// reachability and credentials.
func (e *ElevenLabsWS) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	conn, err := e.dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Close marks the provider closed. Connections are per-utterance, so
// there is no socket to tear down; later Transcribe calls are rejected.
func (e *ElevenLabsWS) Close() error {
	e.closed.Store(true)
	return nil
}

var _ Provider = (*ElevenLabsWS)(nil)

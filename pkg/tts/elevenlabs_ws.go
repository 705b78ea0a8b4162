package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsWSBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"

// ElevenLabsWS implements streaming text-to-speech over the
// stream-input WebSocket API. Each StreamText call opens a connection
// scoped to one reply: a handshake frame carrying the credential and
// voice settings, one frame per text chunk, and an empty-text frame to
// mark end of input. Audio frames come back base64-encoded while text
// is still being sent, which is what keeps time-to-first-audio low.
type ElevenLabsWS struct {
	config *Config
}

// NewElevenLabsWS creates a WebSocket-based ElevenLabs TTS provider.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsWSBaseURL
	}
	cfg.Logger = cfg.Logger.With("component", "tts.elevenlabs_ws")

	return &ElevenLabsWS{config: cfg}, nil
}

// bosFrame opens a synthesis stream. The leading space is required by
// the API to initialize the voice context.
type bosFrame struct {
	Text          string        `json:"text"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
	APIKey        string        `json:"xi_api_key"`
}

type textFrame struct {
	Text       string `json:"text"`
	TryTrigger bool   `json:"try_trigger_generation,omitempty"`
}

// audioFrame is a server reply. The API has used both casings of the
// final flag, so both are accepted.
type audioFrame struct {
	Audio        string `json:"audio"`
	IsFinal      bool   `json:"isFinal"`
	IsFinalSnake bool   `json:"is_final"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

func (f *audioFrame) final() bool { return f.IsFinal || f.IsFinalSnake }

// StreamText synthesizes the text chunks and streams decoded audio.
func (e *ElevenLabsWS) StreamText(ctx context.Context, texts <-chan string) (<-chan []byte, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	audio := make(chan []byte, 8)
	go e.run(ctx, conn, texts, audio)
	return audio, nil
}

func (e *ElevenLabsWS) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.config.BaseURL, e.config.VoiceID, e.config.ModelID, e.config.OutputFormat)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error(), Provider: "elevenlabs"}
		}
		return nil, fmt.Errorf("tts: websocket dial: %w", err)
	}

	bos := bosFrame{
		Text:          " ",
		VoiceSettings: e.config.VoiceSettings,
		APIKey:        e.config.APIKey,
	}
	if err := conn.WriteJSON(bos); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tts: send handshake: %w", err)
	}

	e.config.Logger.Debug("stream opened", "voice", e.config.VoiceID, "model", e.config.ModelID)
	return conn, nil
}

// run drives one reply-scoped session with concurrent send and
// receive, so upload of late text never blocks delivery of early
// audio.
func (e *ElevenLabsWS) run(ctx context.Context, conn *websocket.Conn, texts <-chan string, audio chan<- []byte) {
	defer close(audio)
	defer conn.Close()

	if e.config.StreamTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(e.config.StreamTimeout))
	}

	// Closing the conn unblocks ReadJSON, so cancellation does not
	// wait out the read deadline.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case text, ok := <-texts:
				if !ok {
					conn.WriteJSON(textFrame{Text: ""})
					return
				}
				if text == "" {
					continue
				}
				if err := conn.WriteJSON(textFrame{Text: text, TryTrigger: true}); err != nil {
					e.config.Logger.Error("send text failed", "error", err)
					return
				}
			}
		}
	}()

	for {
		var frame audioFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				e.config.Logger.Debug("stream cancelled")
				return
			}
			e.config.Logger.Error("stream read failed", "error", err)
			return
		}

		if frame.Error != "" {
			e.config.Logger.Error("synthesis failed",
				"code", frame.Error,
				"message", frame.Message,
			)
			return
		}
		if frame.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				e.config.Logger.Warn("undecodable audio frame, skipping", "error", err)
				continue
			}
			select {
			case audio <- pcm:
			case <-ctx.Done():
				return
			}
		}
		if frame.final() {
			return
		}
	}
}

// Synthesize converts one complete text through the streaming path.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	texts := make(chan string, 1)
	texts <- text
	close(texts)

	audio, err := e.StreamText(ctx, texts)
	if err != nil {
		return nil, err
	}

	var out []byte
	for chunk := range audio {
		out = append(out, chunk...)
	}
	return out, nil
}

// Health opens and closes a stream to verify reachability and
// credentials.
// Format returns the configured output encoding.
func (e *ElevenLabsWS) Format() Encoding {
	return e.config.OutputFormat
}

func (e *ElevenLabsWS) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	conn, err := e.dial(ctx)
	if err != nil {
		return err
	}
	conn.WriteJSON(textFrame{Text: ""})
	return conn.Close()
}

// Close releases provider resources. Connections are per-reply, so
// there is nothing persistent to tear down.
func (e *ElevenLabsWS) Close() error {
	return nil
}

var _ Provider = (*ElevenLabsWS)(nil)

package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lenddesk/voicepipe/internal/httpc"
)

// OpenAI implements text-to-speech using the OpenAI speech API. The
// API has no streaming text input, so StreamText gathers the full
// reply first and emits the synthesized audio as a single chunk. Use
// it as a fallback behind the streaming provider.
type OpenAI struct {
	config *Config
	client *openai.Client
	voice  openai.SpeechVoice
}

// NewOpenAI creates an OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = string(openai.VoiceNova)
	cfg.ModelID = string(openai.TTSModel1)
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg.Logger = cfg.Logger.With("component", "tts.openai")

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.HTTPClient = httpc.NewClient(cfg.Timeout)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
		voice:  openai.SpeechVoice(cfg.VoiceID),
	}, nil
}

// StreamText collects all text chunks, then emits one audio chunk.
func (o *OpenAI) StreamText(ctx context.Context, texts <-chan string) (<-chan []byte, error) {
	audio := make(chan []byte, 1)
	go func() {
		defer close(audio)

		var sb strings.Builder
		for {
			select {
			case <-ctx.Done():
				return
			case text, ok := <-texts:
				if !ok {
					if sb.Len() == 0 {
						return
					}
					pcm, err := o.Synthesize(ctx, sb.String())
					if err != nil {
						o.config.Logger.Error("synthesis failed", "error", err)
						return
					}
					select {
					case audio <- pcm:
					case <-ctx.Done():
					}
					return
				}
				sb.WriteString(text)
			}
		}
	}()
	return audio, nil
}

// Synthesize converts one complete text to audio.
func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.config.ModelID),
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: o.responseFormat(),
	})
	if err != nil {
		return nil, fmt.Errorf("tts: openai speech: %w", err)
	}
	defer resp.Close()

	out, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("tts: read speech: %w", err)
	}
	return out, nil
}

func (o *OpenAI) responseFormat() openai.SpeechResponseFormat {
	switch o.config.OutputFormat {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24:
		return openai.SpeechResponseFormatPcm
	default:
		return openai.SpeechResponseFormatMp3
	}
}

// Health lists models to verify connectivity and credentials.
// Format returns the configured output encoding.
func (o *OpenAI) Format() Encoding {
	return o.config.OutputFormat
}

func (o *OpenAI) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("tts: openai health: %w", err)
	}
	return nil
}

// Close releases provider resources.
func (o *OpenAI) Close() error {
	return nil
}

var _ Provider = (*OpenAI)(nil)

// Package tts provides a unified interface for text-to-speech
// providers.
//
// Providers consume a stream of text chunks (as produced by the
// backend reply stream) and emit PCM audio chunks as synthesis
// progresses, so playback starts before the full reply has arrived.
// All implementations satisfy the Provider interface, enabling
// provider switching without changing caller code.
//
// Example usage:
//
//	provider, _ := tts.NewElevenLabsWS(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	)
//	defer provider.Close()
//
//	audio, _ := provider.StreamText(ctx, textChunks)
//	for chunk := range audio {
//	    sink.Write(ctx, chunk)
//	}
package tts

import "context"

// Provider defines the text-to-speech provider interface.
type Provider interface {
	// StreamText synthesizes a stream of text chunks. Reading from
	// texts and delivering audio run concurrently; the returned
	// channel closes when synthesis of all input is complete or the
	// stream fails. Closing texts signals end-of-input.
	StreamText(ctx context.Context, texts <-chan string) (<-chan []byte, error)

	// Synthesize converts one complete text to a single audio
	// buffer. Use it where latency to first byte does not matter.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Encoding identifies the audio output format.
type Encoding string

const (
	// EncodingPCM16 is 16kHz mono PCM16, matching the capture and
	// playback rate of the voice pipeline.
	EncodingPCM16 Encoding = "pcm_16000"

	// EncodingPCM22 is 22.05kHz mono PCM16.
	EncodingPCM22 Encoding = "pcm_22050"

	// EncodingPCM24 is 24kHz mono PCM16.
	EncodingPCM24 Encoding = "pcm_24000"

	// EncodingMP3 is MP3 at 44.1kHz, 128kbps.
	EncodingMP3 Encoding = "mp3_44100_128"
)

// SampleRate returns the sample rate of a PCM encoding in Hz.
func (e Encoding) SampleRate() int {
	switch e {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	default:
		return 44100
	}
}

// IsPCM reports whether the encoding is raw PCM16 that can be fed to
// a playback sink, as opposed to a compressed container.
func (e Encoding) IsPCM() bool {
	switch e {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24:
		return true
	default:
		return false
	}
}

// Formatter is implemented by providers that report their output
// encoding.
type Formatter interface {
	Format() Encoding
}

// FormatOf returns a provider's output encoding. Providers that do
// not report one are assumed to emit EncodingPCM16.
func FormatOf(p Provider) Encoding {
	if f, ok := p.(Formatter); ok {
		return f.Format()
	}
	return EncodingPCM16
}

// VoiceSettings controls voice characteristics for providers that
// support them.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0). Lower is more
	// expressive, higher is more consistent.
	Stability float64 `json:"stability"`

	// SimilarityBoost controls how closely the output matches the
	// voice sample (0.0-1.0).
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.8,
	}
}

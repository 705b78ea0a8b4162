package tts

import "context"

// Stub is the degraded text-to-speech provider used when no live
// provider is configured. It consumes the text stream and emits a
// single empty audio chunk, so downstream playback completes
// immediately and the turn still finishes.
type Stub struct{}

// NewStub creates the degraded TTS provider.
func NewStub() *Stub {
	return &Stub{}
}

// StreamText drains the text stream and emits one empty chunk.
func (s *Stub) StreamText(ctx context.Context, texts <-chan string) (<-chan []byte, error) {
	audio := make(chan []byte, 1)
	go func() {
		defer close(audio)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-texts:
				if !ok {
					audio <- []byte{}
					return
				}
			}
		}
	}()
	return audio, nil
}

// Synthesize returns empty audio.
func (s *Stub) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte{}, nil
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

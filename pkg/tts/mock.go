package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// StreamTextFunc is called when StreamText is invoked.
	// If nil, the mock emits one fixed-size chunk per text chunk
	// received.
	StreamTextFunc func(ctx context.Context, texts <-chan string) (<-chan []byte, error)

	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns silence sized to the text length.
	SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	// ChunkBytes is the size of each emitted audio chunk in the
	// default StreamText behavior. Defaults to 640 (20ms of 16kHz
	// PCM16) when zero.
	ChunkBytes int

	// OutputFormat reported by Format. Defaults to EncodingPCM16
	// when empty.
	OutputFormat Encoding

	// Tracking
	mu     sync.Mutex
	calls  []MockCall
	texts  []string
	closed bool
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a new mock provider with default behavior.
func NewMock() *Mock {
	return &Mock{}
}

// Format returns the mock's output encoding.
func (m *Mock) Format() Encoding {
	if m.OutputFormat == "" {
		return EncodingPCM16
	}
	return m.OutputFormat
}

// StreamText calls StreamTextFunc or emits one silence chunk per text
// chunk, recording every text chunk seen.
func (m *Mock) StreamText(ctx context.Context, texts <-chan string) (<-chan []byte, error) {
	m.recordCall("StreamText", "")
	if m.StreamTextFunc != nil {
		return m.StreamTextFunc(ctx, texts)
	}

	size := m.ChunkBytes
	if size == 0 {
		size = 640
	}

	audio := make(chan []byte, 8)
	go func() {
		defer close(audio)
		for {
			select {
			case <-ctx.Done():
				return
			case text, ok := <-texts:
				if !ok {
					return
				}
				m.mu.Lock()
				m.texts = append(m.texts, text)
				m.mu.Unlock()
				select {
				case audio <- make([]byte, size):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return audio, nil
}

// Synthesize calls SynthesizeFunc or returns silence.
func (m *Mock) Synthesize(ctx context.Context, text string) ([]byte, error) {
	m.recordCall("Synthesize", text)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return make([]byte, len(text)*64), nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", "")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Texts returns every text chunk streamed through the default
// StreamText behavior.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CallCount returns the number of calls to the given method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

var _ Provider = (*Mock)(nil)

package audioio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a scripted audio source for testing. It replays a list of
// frames (or generates silence/sine audio) through the same bounded-queue
// path the device backend uses.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	frameCh chan Frame
	stopCh  chan struct{}

	script   [][]int16
	realtime bool

	frequency float64
	amplitude float64

	seq         atomic.Uint64
	framesRead  atomic.Int64
	samplesRead atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithScript makes the mock replay the given sample blocks as frames,
// then stop. Blocks shorter than the configured block size are emitted
// as-is.
func WithScript(blocks [][]int16) MockSourceOption {
	return func(m *MockSource) {
		m.script = blocks
	}
}

// WithSineWave configures the mock to generate a sine wave indefinitely.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithRealtimePacing makes the mock emit frames at wall-clock rate
// instead of as fast as the consumer drains them.
func WithRealtimePacing() MockSourceOption {
	return func(m *MockSource) {
		m.realtime = true
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins replaying the script or generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.frameCh = make(chan Frame, m.cfg.QueueFrames)

	go m.generateLoop(ctx)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context) {
	defer close(m.frameCh)

	var ticker *time.Ticker
	if m.realtime {
		ticker = time.NewTicker(m.cfg.FrameDuration())
		defer ticker.Stop()
	}

	i := 0
	for {
		if m.script != nil && i >= len(m.script) {
			return
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
			}
		}

		var samples []int16
		if m.script != nil {
			samples = m.script[i]
			i++
		} else {
			samples = m.generateBlock()
		}

		frame := Frame{
			Samples:    samples,
			SampleRate: m.cfg.SampleRate,
			Seq:        m.seq.Add(1) - 1,
		}

		select {
		case m.frameCh <- frame:
			m.framesRead.Add(1)
			m.samplesRead.Add(int64(len(samples)))
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *MockSource) generateBlock() []int16 {
	samples := make([]int16, m.cfg.BlockSize)
	if m.frequency <= 0 {
		return samples // silence
	}
	for i := range samples {
		n := float64(m.seq.Load())*float64(m.cfg.BlockSize) + float64(i)
		v := m.amplitude * math.Sin(2*math.Pi*m.frequency*n/float64(m.cfg.SampleRate))
		samples[i] = int16(v * 32767)
	}
	return samples
}

// Stop halts generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	return nil
}

// NextFrame reads the next frame.
func (m *MockSource) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-m.frameCh:
		if !ok {
			return Frame{}, ErrClosed
		}
		return frame, nil
	}
}

// Frames returns the frame queue.
func (m *MockSource) Frames() <-chan Frame {
	return m.frameCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesRead:  m.framesRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a sink for testing. It records every chunk written so tests
// can assert on playback order and content.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	chunks  [][]byte

	chunksWritten atomic.Int64
	bytesWritten  atomic.Int64
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger}
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.running = true
	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Write records a chunk.
func (m *MockSink) Write(ctx context.Context, pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.running {
		return ErrClosed
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.chunks = append(m.chunks, buf)
	m.chunksWritten.Add(1)
	m.bytesWritten.Add(int64(len(pcm)))
	return nil
}

// Flush is immediate for the mock.
func (m *MockSink) Flush(ctx context.Context) error { return nil }

// Clear discards recorded chunks.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	return nil
}

// Chunks returns all chunks written so far, in order.
func (m *MockSink) Chunks() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSink) Name() string { return "mock" }

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten: m.chunksWritten.Load(),
		BytesWritten:  m.bytesWritten.Load(),
		Running:       running,
		Backend:       "mock",
	}
}

var _ SinkWithStats = (*MockSink)(nil)

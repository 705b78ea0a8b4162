package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// Audio devices are exclusive: one capture stream and one playback stream
// may be open at a time across the process.
var (
	captureInUse  atomic.Bool
	playbackInUse atomic.Bool
)

// DeviceSource captures audio from the default (or configured) input
// device via miniaudio. The device callback appends raw bytes to an
// intermediate buffer; a dedicated capture goroutine slices fixed-size
// frames from it and pushes them into the bounded frame queue, blocking
// when the queue is full.
type DeviceSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []byte
	running bool
	closed  bool

	frameCh chan Frame
	stopCh  chan struct{}

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	seq         atomic.Uint64
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	readErrors  atomic.Int64
}

// ListCaptureDevices returns the names of the available capture
// devices. It opens and tears down a throwaway context, so it is for
// startup diagnostics, not hot paths.
func ListCaptureDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audioio: init context: %w", err)
	}
	defer func() {
		mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("audioio: enumerate capture devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

// newDeviceSource creates a device-backed source. The device itself is
// opened in Start.
func newDeviceSource(cfg Config, logger *slog.Logger) (*DeviceSource, error) {
	s := &DeviceSource{
		cfg:    cfg,
		logger: logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Start opens the capture device and begins producing frames.
// A device-open failure is returned to the caller; it is fatal.
func (s *DeviceSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}
	if !captureInUse.CompareAndSwap(false, true) {
		return ErrDeviceBusy
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		captureInUse.Store(false)
		return fmt.Errorf("audioio: init context: %w", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(s.cfg.Channels)
	devCfg.SampleRate = uint32(s.cfg.SampleRate)
	devCfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.mu.Lock()
			s.pending = append(s.pending, input...)
			s.mu.Unlock()
			s.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		captureInUse.Store(false)
		return fmt.Errorf("audioio: open capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		captureInUse.Store(false)
		return fmt.Errorf("audioio: start capture device: %w", err)
	}

	s.malgoCtx = mctx
	s.device = device
	s.running = true
	s.pending = s.pending[:0]
	s.frameCh = make(chan Frame, s.cfg.QueueFrames)
	s.stopCh = make(chan struct{})

	go s.captureLoop(ctx)

	s.logger.Info("capture started",
		"backend", "device",
		"sample_rate", s.cfg.SampleRate,
		"block_size", s.cfg.BlockSize,
		"queue_frames", s.cfg.QueueFrames,
	)
	return nil
}

// captureLoop slices fixed-size frames from the pending buffer and pushes
// them into the frame queue. The push blocks when the queue is full.
func (s *DeviceSource) captureLoop(ctx context.Context) {
	defer close(s.frameCh)

	frameBytes := s.cfg.FrameBytes()
	for {
		s.mu.Lock()
		for len(s.pending) < frameBytes && s.running {
			s.cond.Wait()
		}
		if !s.running && len(s.pending) < frameBytes {
			s.mu.Unlock()
			return
		}
		raw := make([]byte, frameBytes)
		copy(raw, s.pending[:frameBytes])
		s.pending = s.pending[frameBytes:]
		s.mu.Unlock()

		frame := Frame{
			Samples:    BytesToSamples(raw),
			SampleRate: s.cfg.SampleRate,
			Seq:        s.seq.Add(1) - 1,
		}

		select {
		case s.frameCh <- frame:
			s.framesRead.Add(1)
			s.samplesRead.Add(int64(len(frame.Samples)))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.Stop()
			return
		}
	}
}

// Stop halts capture and releases the device.
func (s *DeviceSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	device := s.device
	mctx := s.malgoCtx
	s.device = nil
	s.malgoCtx = nil
	close(s.stopCh)
	s.mu.Unlock()
	s.cond.Broadcast()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
	if mctx != nil {
		mctx.Uninit()
		mctx.Free()
	}
	captureInUse.Store(false)

	s.logger.Info("capture stopped", "frames", s.framesRead.Load())
	return nil
}

// NextFrame returns the next captured frame, blocking until one is
// available or the source is stopped.
func (s *DeviceSource) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-s.frameCh:
		if !ok {
			return Frame{}, ErrClosed
		}
		return frame, nil
	}
}

// Frames returns the capture queue.
func (s *DeviceSource) Frames() <-chan Frame {
	return s.frameCh
}

// Config returns the capture configuration.
func (s *DeviceSource) Config() Config { return s.cfg }

// Name returns "device".
func (s *DeviceSource) Name() string { return "device" }

// Close releases resources.
func (s *DeviceSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns capture statistics.
func (s *DeviceSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		ReadErrors:  s.readErrors.Load(),
		Running:     running,
		Backend:     "device",
	}
}

var _ SourceWithStats = (*DeviceSource)(nil)

// DeviceSink plays audio through the default output device via oto.
type DeviceSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	running bool
	closed  bool

	otoCtx *oto.Context
	player *oto.Player

	chunksWritten atomic.Int64
	bytesWritten  atomic.Int64
}

// newDeviceSink creates a device-backed sink. The device is opened in Start.
func newDeviceSink(cfg Config, logger *slog.Logger) (*DeviceSink, error) {
	s := &DeviceSink{
		cfg:    cfg,
		logger: logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Start opens the playback device.
func (s *DeviceSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}
	if !playbackInUse.CompareAndSwap(false, true) {
		return ErrDeviceBusy
	}

	opts := &oto.NewContextOptions{
		SampleRate:   s.cfg.SampleRate,
		ChannelCount: s.cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(100) * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		playbackInUse.Store(false)
		return fmt.Errorf("audioio: open playback device: %w", err)
	}
	<-ready

	s.otoCtx = otoCtx
	s.player = otoCtx.NewPlayer(&sinkReader{sink: s})
	s.player.Play()
	s.running = true

	s.logger.Info("playback started", "backend", "device", "sample_rate", s.cfg.SampleRate)
	return nil
}

// sinkReader feeds the oto player from the sink's buffer.
type sinkReader struct {
	sink *DeviceSink
}

func (r *sinkReader) Read(p []byte) (int, error) {
	s := r.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		// Feed silence so the player never starves mid-shutdown.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	if len(s.buf) == 0 {
		// No audio queued: emit silence rather than blocking the
		// audio thread.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.cond.Broadcast()
	}
	return n, nil
}

// Write queues PCM16 bytes for playback.
func (s *DeviceSink) Write(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return ErrClosed
	}
	s.buf = append(s.buf, pcm...)
	s.chunksWritten.Add(1)
	s.bytesWritten.Add(int64(len(pcm)))
	return nil
}

// Flush waits until queued audio has been handed to the device.
func (s *DeviceSink) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		empty := len(s.buf) == 0
		s.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Clear discards queued audio immediately.
func (s *DeviceSink) Clear() error {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

// Stop halts playback and releases the device.
func (s *DeviceSink) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	player := s.player
	s.player = nil
	s.buf = s.buf[:0]
	s.mu.Unlock()
	s.cond.Broadcast()

	if player != nil {
		player.Close()
	}
	playbackInUse.Store(false)

	s.logger.Info("playback stopped", "chunks", s.chunksWritten.Load())
	return nil
}

// Config returns the playback configuration.
func (s *DeviceSink) Config() Config { return s.cfg }

// Name returns "device".
func (s *DeviceSink) Name() string { return "device" }

// Close releases resources.
func (s *DeviceSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns playback statistics.
func (s *DeviceSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten: s.chunksWritten.Load(),
		BytesWritten:  s.bytesWritten.Load(),
		Running:       running,
		Backend:       "device",
	}
}

var _ SinkWithStats = (*DeviceSink)(nil)

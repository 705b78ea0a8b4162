package audioio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockSourceScript(t *testing.T) {
	cfg := DefaultConfig()
	blocks := [][]int16{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}

	src := NewMockSource(cfg, nil, WithScript(blocks))
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Close()

	var frames []Frame
	for frame := range src.Frames() {
		frames = append(frames, frame)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, frame := range frames {
		if frame.Seq != uint64(i) {
			t.Errorf("frame %d seq = %d", i, frame.Seq)
		}
		if frame.SampleRate != cfg.SampleRate {
			t.Errorf("frame %d rate = %d", i, frame.SampleRate)
		}
	}
	if frames[0].Samples[0] != 1 || frames[2].Samples[2] != 9 {
		t.Error("script content not preserved")
	}

	stats := src.Stats()
	if stats.FramesRead != 3 || stats.SamplesRead != 9 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMockSourceNextFrame(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil, WithScript([][]int16{{1}}))
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Close()

	frame, err := src.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("next frame: %v", err)
	}
	if len(frame.Samples) != 1 || frame.Samples[0] != 1 {
		t.Errorf("frame = %+v", frame)
	}

	// Script exhausted: the queue closes and reads fail.
	if _, err := src.NextFrame(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestMockSourceSineWave(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil, WithSineWave(440, 0.5))
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Close()

	frame, err := src.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("next frame: %v", err)
	}
	if frame.Energy() == 0 {
		t.Error("sine wave frame has zero energy")
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestMockSourceLifecycle(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil, WithScript(nil))

	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := src.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("start after close: got %v, want ErrClosed", err)
	}
}

func TestMockSink(t *testing.T) {
	sink := NewMockSink(DefaultConfig(), nil)
	ctx := context.Background()

	if err := sink.Write(ctx, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("write before start: got %v, want ErrClosed", err)
	}

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sink.Write(ctx, []byte{1, 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write(ctx, []byte{3, 4, 5}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	chunks := sink.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[1]) != 3 {
		t.Errorf("chunk sizes = %d, %d", len(chunks[0]), len(chunks[1]))
	}

	stats := sink.Stats()
	if stats.ChunksWritten != 2 || stats.BytesWritten != 5 {
		t.Errorf("stats = %+v", stats)
	}

	// Writes record copies, not the caller's buffer.
	buf := []byte{9, 9}
	_ = sink.Write(ctx, buf)
	buf[0] = 0
	if sink.Chunks()[2][0] != 9 {
		t.Error("sink kept a reference to the caller's buffer")
	}

	if err := sink.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(sink.Chunks()) != 0 {
		t.Error("chunks survive Clear")
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Write(ctx, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close: got %v, want ErrClosed", err)
	}
}

func TestMockSourceRealtimePacing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockSize = 160 // 10ms frames keep the test fast
	src := NewMockSource(cfg, nil, WithScript([][]int16{
		make([]int16, 160),
		make([]int16, 160),
		make([]int16, 160),
	}), WithRealtimePacing())

	start := time.Now()
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Close()

	n := 0
	for range src.Frames() {
		n++
	}
	elapsed := time.Since(start)

	if n != 3 {
		t.Fatalf("got %d frames, want 3", n)
	}
	// Three ticks at 10ms each; generous lower bound for CI jitter.
	if elapsed < 20*time.Millisecond {
		t.Errorf("frames arrived in %v, not paced", elapsed)
	}
}

package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker. Playback consumes chunks strictly in the
// order written; the sink never reorders audio.
type Sink interface {
	// Start prepares the output device. Opening a second playback
	// stream while one is active returns ErrDeviceBusy.
	Start(ctx context.Context) error

	// Stop halts playback and releases the device.
	// It is safe to call Stop multiple times.
	Stop() error

	// Write queues raw PCM16 bytes for playback. Blocks when the
	// device buffer is full.
	Write(ctx context.Context, pcm []byte) error

	// Flush waits until all queued audio has been played.
	Flush(ctx context.Context) error

	// Clear discards queued audio immediately, for interrupting a
	// reply when the user speaks or switches modes.
	Clear() error

	// Config returns the playback configuration.
	Config() Config

	// Name returns the backend name ("device" or "mock").
	Name() string

	// Close releases all resources. The sink cannot be restarted.
	io.Closer
}

// SinkStats contains playback statistics.
type SinkStats struct {
	// ChunksWritten is the total number of chunks written.
	ChunksWritten int64 `json:"chunks_written"`

	// BytesWritten is the total number of audio bytes written.
	BytesWritten int64 `json:"bytes_written"`

	// Running indicates if the sink is currently playing.
	Running bool `json:"running"`

	// Backend is the backend name.
	Backend string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}

package audioio

import (
	"context"
	"io"
)

// Source captures audio from a microphone or other input.
//
// The capture loop runs on a dedicated goroutine and pushes frames into a
// bounded queue. If the consumer falls behind, the producer blocks on the
// queue rather than dropping audio; callers must size QueueFrames to cover
// their worst-case stall and drain promptly.
type Source interface {
	// Start begins capture. Opening the device a second time while a
	// capture stream is active returns ErrDeviceBusy. A device-open
	// failure is fatal and returned here.
	Start(ctx context.Context) error

	// Stop halts capture and releases the device.
	// It is safe to call Stop multiple times.
	Stop() error

	// NextFrame returns the next captured frame, blocking until one is
	// available. Returns io.EOF once the source is stopped and the
	// queue is drained.
	NextFrame(ctx context.Context) (Frame, error)

	// Frames returns the capture queue directly. The channel is closed
	// when the source is stopped.
	Frames() <-chan Frame

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name ("device" or "mock").
	Name() string

	// Close releases all resources. The source cannot be restarted.
	io.Closer
}

// SourceStats contains capture statistics.
type SourceStats struct {
	// FramesRead is the total number of frames produced.
	FramesRead int64 `json:"frames_read"`

	// SamplesRead is the total number of samples produced.
	SamplesRead int64 `json:"samples_read"`

	// ReadErrors is the number of device read errors. Each one is
	// logged and treated as a dropped frame; segmentation tolerates
	// isolated gaps.
	ReadErrors int64 `json:"read_errors"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the backend name.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

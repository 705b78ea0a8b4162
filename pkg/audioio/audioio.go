// Package audioio provides microphone capture and speaker playback for the
// voice pipeline.
//
// Two backends are available:
//   - device: real hardware via miniaudio (capture) and oto (playback)
//   - mock:   scripted frames for CI and tests, no hardware required
//
// Capture produces fixed-size PCM16 frames at 16 kHz mono. The capture loop
// runs on its own goroutine and hands frames to the consumer through a
// bounded queue; when the queue is full the producer blocks rather than
// dropping audio, since dropped frames corrupt transcription downstream.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// Backend selects the audio implementation.
type Backend string

const (
	// BackendAuto selects the device backend, falling back to mock when
	// no hardware context can be created.
	BackendAuto Backend = "auto"
	// BackendDevice uses real capture/playback hardware.
	BackendDevice Backend = "device"
	// BackendMock uses scripted audio for testing.
	BackendMock Backend = "mock"
)

// Errors shared by sources and sinks.
var (
	// ErrClosed is returned by operations on a closed source or sink.
	ErrClosed = errors.New("audioio: closed")
	// ErrDeviceBusy is returned when a second capture or playback stream
	// is opened while one is already active. Devices are exclusive.
	ErrDeviceBusy = errors.New("audioio: device already in use")
)

// Config holds audio parameters shared by capture and playback.
type Config struct {
	// Backend specifies the audio backend. Default: auto.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate in Hz. The pipeline is fixed at 16000.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the channel count. The pipeline is fixed at 1.
	Channels int `yaml:"channels" json:"channels"`

	// BlockSize is the number of samples per capture frame.
	BlockSize int `yaml:"block_size" json:"block_size"`

	// QueueFrames is the capacity of the capture queue in frames.
	// Size it to several seconds of audio; the producer blocks when full.
	QueueFrames int `yaml:"queue_frames" json:"queue_frames"`

	// Device is the platform device identifier, empty for default.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with the pipeline's fixed audio format.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendAuto,
		SampleRate:  16000,
		Channels:    1,
		BlockSize:   1024,
		QueueFrames: 128, // ~8s of audio at 1024 samples per frame
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 {
		return fmt.Errorf("audioio: only mono is supported, got %d channels", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("audioio: block_size must be positive, got %d", c.BlockSize)
	}
	if c.QueueFrames <= 0 {
		return fmt.Errorf("audioio: queue_frames must be positive, got %d", c.QueueFrames)
	}
	return nil
}

// FrameDuration returns the duration of one capture frame.
func (c *Config) FrameDuration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// FrameBytes returns the size of one frame in bytes (PCM16).
func (c *Config) FrameBytes() int {
	return c.BlockSize * c.Channels * 2
}

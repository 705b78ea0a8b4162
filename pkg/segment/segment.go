// Package segment turns a continuous frame stream into discrete
// utterances using silence detection.
//
// The segmenter is a two-state machine ({idle, accumulating}) driven only
// by frame energy and elapsed time. It holds no network state, so
// segmentation keeps working regardless of transcription latency.
package segment

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lenddesk/voicepipe/pkg/audioio"
)

// Config holds the silence-detection parameters.
type Config struct {
	// SilenceThreshold is the mean absolute amplitude below which a
	// frame counts as silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDuration is how much continuous silence closes an
	// utterance.
	SilenceDuration time.Duration `yaml:"silence_duration"`

	// MinUtteranceDuration discards shorter utterances as noise.
	MinUtteranceDuration time.Duration `yaml:"min_utterance_duration"`
}

// DefaultConfig returns the segmentation defaults.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:     500,
		SilenceDuration:      time.Second,
		MinUtteranceDuration: 500 * time.Millisecond,
	}
}

// Utterance is a contiguous span of voiced audio bounded by silence.
// It is created by the segmenter, consumed exactly once by the
// transcriber, then discarded.
type Utterance struct {
	// ID is an opaque identifier carried through transcript events.
	ID string

	// Frames are the utterance's frames in capture order, trailing
	// silence trimmed.
	Frames []audioio.Frame

	// SampleRate of the contained audio.
	SampleRate int

	// PeakEnergy is the maximum frame energy observed.
	PeakEnergy float64
}

// Duration returns the total duration of the utterance.
func (u *Utterance) Duration() time.Duration {
	var d time.Duration
	for i := range u.Frames {
		d += u.Frames[i].Duration()
	}
	return d
}

// Samples returns the utterance audio as one contiguous sample slice.
func (u *Utterance) Samples() []int16 {
	var n int
	for i := range u.Frames {
		n += len(u.Frames[i].Samples)
	}
	out := make([]int16, 0, n)
	for i := range u.Frames {
		out = append(out, u.Frames[i].Samples...)
	}
	return out
}

// Bytes returns the utterance audio as raw PCM16 little-endian bytes.
func (u *Utterance) Bytes() []byte {
	return audioio.SamplesToBytes(u.Samples())
}

type state int

const (
	stateIdle state = iota
	stateAccumulating
)

// Segmenter buffers frames and emits utterance boundaries.
// It is not goroutine-safe; one goroutine feeds it via Push or Run.
type Segmenter struct {
	cfg    Config
	logger *slog.Logger

	state      state
	frames     []audioio.Frame
	lastVoiced int // index of the last voiced frame in frames
	silentRun  time.Duration
	peak       float64
}

// New creates a segmenter.
func New(cfg Config, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{
		cfg:    cfg,
		logger: logger,
		state:  stateIdle,
	}
}

// Push feeds one frame into the state machine. It returns a closed
// utterance when the frame completes one, otherwise nil.
func (s *Segmenter) Push(frame audioio.Frame) *Utterance {
	energy := frame.Energy()
	voiced := energy >= s.cfg.SilenceThreshold

	switch s.state {
	case stateIdle:
		if !voiced {
			return nil
		}
		s.state = stateAccumulating
		s.frames = append(s.frames[:0], frame)
		s.lastVoiced = 0
		s.silentRun = 0
		s.peak = energy
		return nil

	case stateAccumulating:
		s.frames = append(s.frames, frame)
		if voiced {
			s.lastVoiced = len(s.frames) - 1
			s.silentRun = 0
			if energy > s.peak {
				s.peak = energy
			}
			return nil
		}

		s.silentRun += frame.Duration()
		if s.silentRun < s.cfg.SilenceDuration {
			return nil
		}
		return s.close()
	}
	return nil
}

// Flush emits whatever is buffered regardless of silence state, provided
// it meets the minimum duration; shorter remainders are discarded
// silently. Call on mode switch or shutdown.
func (s *Segmenter) Flush() *Utterance {
	if s.state != stateAccumulating {
		return nil
	}
	return s.close()
}

// close trims trailing silence, resets state, and emits the utterance if
// it meets the minimum duration.
func (s *Segmenter) close() *Utterance {
	frames := s.frames[:s.lastVoiced+1]
	peak := s.peak

	s.state = stateIdle
	s.frames = nil
	s.lastVoiced = 0
	s.silentRun = 0
	s.peak = 0

	utt := &Utterance{
		ID:         uuid.NewString(),
		Frames:     frames,
		SampleRate: frames[0].SampleRate,
		PeakEnergy: peak,
	}
	if utt.Duration() < s.cfg.MinUtteranceDuration {
		s.logger.Debug("discarding short utterance",
			"duration", utt.Duration(),
			"min", s.cfg.MinUtteranceDuration,
		)
		return nil
	}

	s.logger.Debug("utterance closed",
		"utterance_id", utt.ID,
		"duration", utt.Duration(),
		"frames", len(utt.Frames),
		"peak_energy", peak,
	)
	return utt
}

// Run consumes frames until the channel closes or the context ends,
// sending closed utterances downstream. The remainder is flushed on a
// clean end of stream. The returned channel is closed when Run finishes.
func (s *Segmenter) Run(done <-chan struct{}, frames <-chan audioio.Frame) <-chan *Utterance {
	out := make(chan *Utterance, 1)

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case frame, ok := <-frames:
				if !ok {
					if utt := s.Flush(); utt != nil {
						out <- utt
					}
					return
				}
				if utt := s.Push(frame); utt != nil {
					select {
					case out <- utt:
					case <-done:
						return
					}
				}
			}
		}
	}()

	return out
}

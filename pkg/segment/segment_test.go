package segment

import (
	"testing"
	"time"

	"github.com/lenddesk/voicepipe/pkg/audioio"
)

const (
	testSampleRate = 16000
	testBlockSize  = 1024 // 64ms per frame at 16kHz
)

func voicedFrame(amplitude int16) audioio.Frame {
	samples := make([]int16, testBlockSize)
	for i := range samples {
		samples[i] = amplitude
	}
	return audioio.Frame{Samples: samples, SampleRate: testSampleRate}
}

func silentFrame() audioio.Frame {
	return audioio.Frame{Samples: make([]int16, testBlockSize), SampleRate: testSampleRate}
}

func pushAll(t *testing.T, s *Segmenter, frames []audioio.Frame) []*Utterance {
	t.Helper()
	var out []*Utterance
	for _, f := range frames {
		if utt := s.Push(f); utt != nil {
			out = append(out, utt)
		}
	}
	return out
}

func repeatFrames(f func() audioio.Frame, n int) []audioio.Frame {
	frames := make([]audioio.Frame, n)
	for i := range frames {
		frames[i] = f()
	}
	return frames
}

func TestSegmenterSilenceOnly(t *testing.T) {
	s := New(DefaultConfig(), nil)

	// 5 seconds of silence must not produce anything.
	for i := 0; i < 80; i++ {
		if utt := s.Push(silentFrame()); utt != nil {
			t.Fatalf("got utterance from silence at frame %d", i)
		}
	}
	if utt := s.Flush(); utt != nil {
		t.Errorf("flush after silence returned utterance %q", utt.ID)
	}
}

func TestSegmenterClosesOnSilence(t *testing.T) {
	s := New(DefaultConfig(), nil)

	// ~1s of speech followed by enough silence to close the utterance.
	voiced := repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 16)
	if got := pushAll(t, s, voiced); len(got) != 0 {
		t.Fatalf("utterance closed during speech")
	}

	var utt *Utterance
	for i := 0; i < 20; i++ {
		if utt = s.Push(silentFrame()); utt != nil {
			break
		}
	}
	if utt == nil {
		t.Fatal("no utterance after 20 silent frames")
	}
	if utt.ID == "" {
		t.Error("utterance has empty ID")
	}

	// Trailing silence is trimmed, so only the voiced frames remain.
	if len(utt.Frames) != 16 {
		t.Errorf("frames = %d, want 16 (trailing silence kept?)", len(utt.Frames))
	}
	want := 16 * time.Duration(testBlockSize) * time.Second / testSampleRate
	if utt.Duration() != want {
		t.Errorf("duration = %v, want %v", utt.Duration(), want)
	}
	if utt.SampleRate != testSampleRate {
		t.Errorf("sample rate = %d, want %d", utt.SampleRate, testSampleRate)
	}
}

func TestSegmenterDiscardsShortUtterance(t *testing.T) {
	s := New(DefaultConfig(), nil)

	// 2 frames (~128ms) of speech is below the 500ms minimum.
	pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 2))
	for i := 0; i < 20; i++ {
		if utt := s.Push(silentFrame()); utt != nil {
			t.Fatalf("short utterance was emitted: %v", utt.Duration())
		}
	}

	// The segmenter must be back in idle and accept a real utterance.
	pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 16))
	var utt *Utterance
	for i := 0; i < 20; i++ {
		if utt = s.Push(silentFrame()); utt != nil {
			break
		}
	}
	if utt == nil {
		t.Fatal("no utterance after discard and new speech")
	}
}

func TestSegmenterFlush(t *testing.T) {
	t.Run("emits open utterance", func(t *testing.T) {
		s := New(DefaultConfig(), nil)
		pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 10))

		utt := s.Flush()
		if utt == nil {
			t.Fatal("flush returned nil for open utterance")
		}
		if len(utt.Frames) != 10 {
			t.Errorf("frames = %d, want 10", len(utt.Frames))
		}
	})

	t.Run("discards sub-minimum remainder", func(t *testing.T) {
		s := New(DefaultConfig(), nil)
		pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 3))

		if utt := s.Flush(); utt != nil {
			t.Errorf("flush emitted short remainder: %v", utt.Duration())
		}
	})

	t.Run("idle flush is nil", func(t *testing.T) {
		s := New(DefaultConfig(), nil)
		if utt := s.Flush(); utt != nil {
			t.Error("flush on idle segmenter returned utterance")
		}
	})
}

func TestSegmenterInternalSilenceKept(t *testing.T) {
	s := New(DefaultConfig(), nil)

	// Speech with a short pause in the middle stays one utterance, and
	// the pause frames are part of it.
	pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 8))
	pushAll(t, s, repeatFrames(silentFrame, 5)) // ~320ms, below SilenceDuration
	pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 8))

	var utt *Utterance
	for i := 0; i < 20; i++ {
		if utt = s.Push(silentFrame()); utt != nil {
			break
		}
	}
	if utt == nil {
		t.Fatal("no utterance")
	}
	if len(utt.Frames) != 21 {
		t.Errorf("frames = %d, want 21 (8 voiced + 5 pause + 8 voiced)", len(utt.Frames))
	}
}

func TestSegmenterPeakEnergy(t *testing.T) {
	s := New(DefaultConfig(), nil)

	pushAll(t, s, []audioio.Frame{voicedFrame(600), voicedFrame(2000), voicedFrame(900)})
	for i := 0; i < 10; i++ {
		pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(600) }, 1))
	}

	utt := s.Flush()
	if utt == nil {
		t.Fatal("flush returned nil")
	}
	if utt.PeakEnergy != 2000 {
		t.Errorf("peak energy = %v, want 2000", utt.PeakEnergy)
	}
}

func TestSegmenterDistinctIDs(t *testing.T) {
	s := New(DefaultConfig(), nil)

	emit := func() *Utterance {
		pushAll(t, s, repeatFrames(func() audioio.Frame { return voicedFrame(1000) }, 16))
		for i := 0; i < 20; i++ {
			if utt := s.Push(silentFrame()); utt != nil {
				return utt
			}
		}
		return nil
	}

	first := emit()
	second := emit()
	if first == nil || second == nil {
		t.Fatal("missing utterance")
	}
	if first.ID == second.ID {
		t.Errorf("consecutive utterances share ID %q", first.ID)
	}
}

func TestUtteranceSamplesAndBytes(t *testing.T) {
	utt := &Utterance{
		Frames: []audioio.Frame{
			{Samples: []int16{1, 2}, SampleRate: testSampleRate},
			{Samples: []int16{3}, SampleRate: testSampleRate},
		},
		SampleRate: testSampleRate,
	}

	samples := utt.Samples()
	if len(samples) != 3 || samples[0] != 1 || samples[1] != 2 || samples[2] != 3 {
		t.Errorf("samples = %v, want [1 2 3]", samples)
	}
	if got := len(utt.Bytes()); got != 6 {
		t.Errorf("bytes = %d, want 6", got)
	}
}

func TestSegmenterRun(t *testing.T) {
	t.Run("pumps and flushes on close", func(t *testing.T) {
		s := New(DefaultConfig(), nil)
		frames := make(chan audioio.Frame, 64)
		done := make(chan struct{})
		defer close(done)

		out := s.Run(done, frames)

		// A full utterance closed by silence, then an open one the
		// flush must emit when the stream ends.
		for i := 0; i < 16; i++ {
			frames <- voicedFrame(1000)
		}
		for i := 0; i < 20; i++ {
			frames <- silentFrame()
		}
		for i := 0; i < 10; i++ {
			frames <- voicedFrame(1000)
		}
		close(frames)

		var got []*Utterance
		timeout := time.After(2 * time.Second)
		for {
			select {
			case utt, ok := <-out:
				if !ok {
					if len(got) != 2 {
						t.Fatalf("utterances = %d, want 2", len(got))
					}
					if len(got[0].Frames) != 16 {
						t.Errorf("first utterance frames = %d, want 16", len(got[0].Frames))
					}
					if len(got[1].Frames) != 10 {
						t.Errorf("flushed utterance frames = %d, want 10", len(got[1].Frames))
					}
					return
				}
				got = append(got, utt)
			case <-timeout:
				t.Fatal("timed out waiting for utterances")
			}
		}
	})

	t.Run("stops on done", func(t *testing.T) {
		s := New(DefaultConfig(), nil)
		frames := make(chan audioio.Frame)
		done := make(chan struct{})

		out := s.Run(done, frames)
		close(done)

		select {
		case _, ok := <-out:
			if ok {
				t.Error("unexpected utterance after done")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("output channel not closed after done")
		}
	})
}

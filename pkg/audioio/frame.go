package audioio

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Frame is one fixed-size block of captured audio. Frames are immutable
// once produced; ownership passes to the queue that carries them from
// capture to segmentation.
type Frame struct {
	// Samples contains PCM16 little-endian samples.
	Samples []int16

	// SampleRate is the sample rate of this frame in Hz.
	SampleRate int

	// Seq is the monotonic sequence number assigned at capture.
	Seq uint64
}

// Bytes returns the raw little-endian bytes of the frame.
func (f *Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// Duration returns the playback duration of this frame.
func (f *Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Energy returns the mean absolute amplitude of the frame. The segmenter
// compares this against its silence threshold.
func (f *Frame) Energy() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(len(f.Samples))
}

// Peak returns the maximum absolute amplitude of the frame.
func (f *Frame) Peak() float64 {
	var peak float64
	for _, s := range f.Samples {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// EncodeWAV wraps raw PCM16 mono samples in a minimal WAV container.
// The REST transcription fallback uploads files in this form.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	data := SamplesToBytes(samples)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes()
}

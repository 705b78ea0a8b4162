package voice

import (
	"sync"
	"time"
)

// Metrics tracks latency at each stage of one conversation turn. All
// durations are measured from the moment the utterance ended.
type Metrics struct {
	// Timestamps for key events
	SpeechEndTime  time.Time // silence closed the utterance
	TranscriptTime time.Time // final transcript arrived
	FirstReplyTime time.Time // first backend reply piece arrived
	FirstAudioTime time.Time // first synthesized audio chunk arrived
	TurnDoneTime   time.Time // reply fully delivered

	// Computed latencies (from speech end)
	ASRLatency      time.Duration // time to final transcript
	ReplyFirstPiece time.Duration // time to first reply piece
	TTSFirstAudio   time.Duration // time to first audio chunk
	TotalLatency    time.Duration // total end-to-end latency
}

// MetricsCollector collects latency metrics during conversation turns.
// It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, 100),
	}
}

// MarkSpeechEnd records when the utterance ended. This resets the
// collector for a new turn and is the reference point for all
// latencies.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{SpeechEndTime: time.Now()}
}

// MarkTranscript records when the final transcript arrived.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	if !m.current.SpeechEndTime.IsZero() {
		m.current.ASRLatency = m.current.TranscriptTime.Sub(m.current.SpeechEndTime)
	}
}

// MarkFirstReply records when the first backend reply piece arrived.
func (m *MetricsCollector) MarkFirstReply() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstReplyTime.IsZero() {
		m.current.FirstReplyTime = time.Now()
		if !m.current.SpeechEndTime.IsZero() {
			m.current.ReplyFirstPiece = m.current.FirstReplyTime.Sub(m.current.SpeechEndTime)
		}
	}
}

// MarkFirstAudio records when the first audio chunk arrived.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.SpeechEndTime.IsZero() {
			m.current.TTSFirstAudio = m.current.FirstAudioTime.Sub(m.current.SpeechEndTime)
		}
	}
}

// MarkTurnDone records when the reply was fully delivered and archives
// the turn.
func (m *MetricsCollector) MarkTurnDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TurnDoneTime = time.Now()
	if !m.current.SpeechEndTime.IsZero() {
		m.current.TotalLatency = m.current.TurnDoneTime.Sub(m.current.SpeechEndTime)
	}
	m.history = append(m.history, m.current)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
}

// Current returns the current turn's metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Average returns average latencies over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.ASRLatency += h.ASRLatency
		avg.ReplyFirstPiece += h.ReplyFirstPiece
		avg.TTSFirstAudio += h.TTSFirstAudio
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.ASRLatency /= n
	avg.ReplyFirstPiece /= n
	avg.TTSFirstAudio /= n
	avg.TotalLatency /= n

	return avg
}

// FormatLatency returns a formatted one-line latency summary.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.ASRLatency) + " ASR | " +
		formatDuration(m.ReplyFirstPiece) + " REPLY | " +
		formatDuration(m.TTSFirstAudio) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}

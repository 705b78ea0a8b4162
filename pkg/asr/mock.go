package asr

import (
	"context"
	"sync"
	"time"

	"github.com/lenddesk/voicepipe/pkg/segment"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, the mock replays Script (or a single final event with
	// Transcript) for each utterance.
	TranscribeFunc func(ctx context.Context, utt *segment.Utterance) (<-chan TranscriptEvent, error)

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	// Transcript is the final text returned when Script is empty.
	Transcript string

	// Script, when set, is replayed as-is for every utterance with
	// the UtteranceID filled in.
	Script []TranscriptEvent

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method      string
	UtteranceID string
	Time        time.Time
}

// NewMock creates a mock provider that finalizes every utterance with
// the given transcript.
func NewMock(transcript string) *Mock {
	return &Mock{Transcript: transcript}
}

// Transcribe calls TranscribeFunc or replays the scripted events.
func (m *Mock) Transcribe(ctx context.Context, utt *segment.Utterance) (<-chan TranscriptEvent, error) {
	m.recordCall("Transcribe", utt.ID)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, utt)
	}

	events := make(chan TranscriptEvent, len(m.Script)+1)
	if len(m.Script) > 0 {
		for _, ev := range m.Script {
			ev.UtteranceID = utt.ID
			events <- ev
		}
	} else {
		events <- finalEvent(utt.ID, m.Transcript, "", 1)
	}
	close(events)
	return events, nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", "")
	return nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls to the given method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Mock) recordCall(method, utteranceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, UtteranceID: utteranceID, Time: time.Now()})
}

var _ Provider = (*Mock)(nil)

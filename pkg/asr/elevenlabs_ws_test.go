package asr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// sttServer fakes the streaming recognition endpoint: it consumes the
// handshake and audio, then plays back the given frames.
func sttServer(t *testing.T, replies []sttMessage, got *sttServerState) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.ReadJSON(&got.handshake); err != nil {
			return
		}

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				got.audioBytes += len(data)
				got.audioFrames++
				continue
			}
			var marker map[string]bool
			if json.Unmarshal(data, &marker) == nil && marker["eof"] {
				break
			}
		}

		for _, msg := range replies {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type sttServerState struct {
	handshake   handshake
	audioBytes  int
	audioFrames int
}

func newTestProvider(t *testing.T, url string) *ElevenLabsWS {
	t.Helper()
	p, err := NewElevenLabsWS(
		WithAPIKey("test-key"),
		WithBaseURL(url),
		WithLanguages([]string{"en", "hi"}),
		WithRetries(0, 0),
		WithStreamTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestElevenLabsWSTranscribe(t *testing.T) {
	var state sttServerState
	url := sttServer(t, []sttMessage{
		{Transcript: "what is"},
		{Transcript: "what is p2p lending", IsFinal: true, LanguageCode: "en", Confidence: 0.91},
	}, &state)

	p := newTestProvider(t, url)
	defer p.Close()

	// 20000 samples is 40000 bytes: five 8000-byte frames.
	events, err := p.Transcribe(context.Background(), testUtterance("utt-1", 20000))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	got := drainEvents(t, events)

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].IsFinal || got[0].Text != "what is" {
		t.Errorf("partial = %+v", got[0])
	}
	final := got[1]
	if !final.IsFinal || final.Text != "what is p2p lending" {
		t.Errorf("final = %+v", final)
	}
	if final.LanguageCode != "en" || final.Confidence != 0.91 {
		t.Errorf("final metadata = %+v", final)
	}
	if final.UtteranceID != "utt-1" {
		t.Errorf("utterance id = %q", final.UtteranceID)
	}

	if state.handshake.APIKey != "test-key" {
		t.Errorf("handshake api key = %q", state.handshake.APIKey)
	}
	if state.handshake.SampleRate != 16000 {
		t.Errorf("handshake sample rate = %d", state.handshake.SampleRate)
	}
	if len(state.handshake.Languages) != 2 {
		t.Errorf("handshake languages = %v", state.handshake.Languages)
	}
	if state.audioBytes != 40000 {
		t.Errorf("server received %d audio bytes, want 40000", state.audioBytes)
	}
	if state.audioFrames != 5 {
		t.Errorf("server received %d audio frames, want 5", state.audioFrames)
	}
}

func TestElevenLabsWSPartialNeverRegresses(t *testing.T) {
	var state sttServerState
	url := sttServer(t, []sttMessage{
		{Transcript: "what is p2p"},
		{Transcript: "what is"}, // provider misread, shorter than before
		{Transcript: "what is p2p lending", IsFinal: true},
	}, &state)

	p := newTestProvider(t, url)
	defer p.Close()

	events, err := p.Transcribe(context.Background(), testUtterance("utt-1", 8000))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	got := drainEvents(t, events)

	// The regressing partial is dropped entirely.
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(got), got)
	}
	prev := 0
	for _, ev := range got {
		if len(ev.Text) < prev {
			t.Errorf("text regressed to %q", ev.Text)
		}
		prev = len(ev.Text)
	}
}

func TestElevenLabsWSFinalSubstitution(t *testing.T) {
	var state sttServerState
	url := sttServer(t, []sttMessage{
		{Transcript: "the whole question"},
		{Transcript: "", IsFinal: true},
	}, &state)

	p := newTestProvider(t, url)
	defer p.Close()

	events, err := p.Transcribe(context.Background(), testUtterance("utt-1", 8000))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	got := drainEvents(t, events)

	final := got[len(got)-1]
	if !final.IsFinal {
		t.Fatal("no final event")
	}
	if final.Text != "the whole question" {
		t.Errorf("final text = %q, want the accumulated partial", final.Text)
	}
}

func TestElevenLabsWSServerError(t *testing.T) {
	var state sttServerState
	url := sttServer(t, []sttMessage{
		{Error: "invalid api key"},
	}, &state)

	p := newTestProvider(t, url)
	defer p.Close()

	events, err := p.Transcribe(context.Background(), testUtterance("utt-1", 8000))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	got := drainEvents(t, events)

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Err == nil {
		t.Fatal("terminal event has no error")
	}
	var apiErr *APIError
	if !errors.As(got[0].Err, &apiErr) {
		t.Fatalf("error type = %T", got[0].Err)
	}
	if apiErr.Message != "invalid api key" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestElevenLabsWSClosed(t *testing.T) {
	p, err := NewElevenLabsWS(
		WithAPIKey("k"),
		WithBaseURL("ws://127.0.0.1:1"),
	)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), testUtterance("u", 100)); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestElevenLabsWSUnreachable(t *testing.T) {
	p, err := NewElevenLabsWS(
		WithAPIKey("k"),
		WithBaseURL("ws://127.0.0.1:1"),
		WithRetries(1, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), testUtterance("u", 100)); err == nil {
		t.Error("expected dial failure")
	}
	if err := p.Health(context.Background()); err == nil {
		t.Error("expected health failure")
	}
}

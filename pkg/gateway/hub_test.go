package gateway

import (
	"encoding/base64"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/lenddesk/voicepipe/pkg/backend"
	"github.com/lenddesk/voicepipe/pkg/session"
	"github.com/lenddesk/voicepipe/pkg/tts"
	"github.com/lenddesk/voicepipe/pkg/voice"
)

// newTestHub wires a hub whose pipelines run on the canned-reply
// backend and mock synthesis, so turns complete without network or
// audio hardware.
func newTestHub(t *testing.T) (*Hub, *session.Store) {
	t.Helper()
	sessions := session.NewStore()

	factory := func(sessionID string) (*voice.Pipeline, error) {
		return voice.New(voice.Config{
			Synthesizer: tts.NewMock(),
			Backend:     backend.NewFallback(backend.WithPacingDelay(time.Millisecond)),
			Sessions:    sessions,
			SessionID:   sessionID,
		})
	}

	return NewHub(factory, NewMetrics("test"), slog.Default()), sessions
}

func startTestApp(t *testing.T, hub *Hub, addr string) {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func TestNewHub(t *testing.T) {
	hub, _ := newTestHub(t)

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	stats := hub.GetStats()
	if stats.ClientCount != 0 || stats.MessagesReceived != 0 || stats.MessagesSent != 0 {
		t.Errorf("fresh hub stats = %+v", stats)
	}
	if infos := hub.GetClientInfos(); len(infos) != 0 {
		t.Errorf("fresh hub has %d clients", len(infos))
	}
}

func TestHubTurn(t *testing.T) {
	hub, sessions := newTestHub(t)
	startTestApp(t, hub, ":18090")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18090/ws/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]string{
		"action": "send",
		"text":   "what is p2p lending",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var frames []streamFrame
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var frame streamFrame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v (after %d frames)", err, len(frames))
		}
		frames = append(frames, frame)
		if frame.Type == string(voice.KindFinalText) {
			break
		}
		if frame.Type == string(voice.KindError) {
			t.Fatalf("turn failed: %s", frame.Error)
		}
	}

	var partials, audio int
	sessionID := ""
	for _, frame := range frames {
		switch frame.Type {
		case string(voice.KindPartialText):
			partials++
		case string(voice.KindAudio):
			audio++
			if _, err := base64.StdEncoding.DecodeString(frame.Audio); err != nil {
				t.Errorf("audio frame not base64: %v", err)
			}
		}
		if frame.SessionID != "" {
			sessionID = frame.SessionID
		}
	}
	if partials == 0 {
		t.Error("no partial text frames")
	}
	if audio == 0 {
		t.Error("no audio frames")
	}
	if sessionID == "" {
		t.Fatal("no session id on frames")
	}

	history, err := sessions.History(sessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}

	stats := hub.GetStats()
	if stats.MessagesReceived != 1 {
		t.Errorf("messages received = %d, want 1", stats.MessagesReceived)
	}
	if stats.MessagesSent == 0 {
		t.Error("no messages sent recorded")
	}
}

func TestHubResumeSession(t *testing.T) {
	hub, sessions := newTestHub(t)
	startTestApp(t, hub, ":18091")

	existing := sessions.GetOrCreate("resume-me")
	_ = sessions.AppendTurn(existing.ID(), session.RoleUser, "earlier question")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18091/ws/chat?session_id=resume-me", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	time.Sleep(100 * time.Millisecond)
	infos := hub.GetClientInfos()
	if len(infos) != 1 {
		t.Fatalf("clients = %d, want 1", len(infos))
	}
	if infos[0].SessionID != "resume-me" {
		t.Errorf("client session = %q, want resume-me", infos[0].SessionID)
	}
}

func TestHubRejectsBadRequests(t *testing.T) {
	hub, _ := newTestHub(t)
	startTestApp(t, hub, ":18092")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18092/ws/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	t.Run("unsupported action", func(t *testing.T) {
		ws.WriteJSON(map[string]string{"action": "subscribe", "text": "x"})
		var frame streamFrame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type != string(voice.KindError) || frame.Error != "unsupported action" {
			t.Errorf("frame = %+v", frame)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		ws.WriteJSON(map[string]string{"action": "send"})
		var frame streamFrame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type != string(voice.KindError) || frame.Error != "empty text" {
			t.Errorf("frame = %+v", frame)
		}
	})
}

func TestHubDisconnectCleanup(t *testing.T) {
	hub, _ := newTestHub(t)
	startTestApp(t, hub, ":18093")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18093/ws/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := hub.GetStats().ClientCount; got != 1 {
		t.Fatalf("client count = %d, want 1", got)
	}

	ws.Close()
	time.Sleep(200 * time.Millisecond)
	if got := hub.GetStats().ClientCount; got != 0 {
		t.Errorf("client count = %d after disconnect, want 0", got)
	}
}

func TestHubUpgradeRequired(t *testing.T) {
	hub, _ := newTestHub(t)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)

	req := httptest.NewRequest("GET", "/ws/chat", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusUpgradeRequired)
	}
}

// Package gateway exposes the conversation pipeline to browser and
// app clients over WebSocket, one session per connection.
package gateway

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lenddesk/voicepipe/pkg/voice"
)

// PipelineFactory builds a pipeline bound to one session. The gateway
// calls it once per client connection.
type PipelineFactory func(sessionID string) (*voice.Pipeline, error)

// ClientConnection represents one connected client.
type ClientConnection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send writes a JSON frame to the client.
func (c *ClientConnection) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// clientRequest is one incoming turn frame.
type clientRequest struct {
	Action    string `json:"action"`
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// streamFrame is one outgoing chunk frame. Audio is base64-encoded
// PCM16.
type streamFrame struct {
	Type      string `json:"type"`
	Seq       int    `json:"seq"`
	Text      string `json:"text,omitempty"`
	IsFinal   bool   `json:"is_final,omitempty"`
	Language  string `json:"language,omitempty"`
	Audio     string `json:"audio,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Hub manages WebSocket connections from conversation clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*ClientConnection

	factory PipelineFactory
	metrics *Metrics
	logger  *slog.Logger

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
}

// NewHub creates a client hub.
func NewHub(factory PipelineFactory, metrics *Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*ClientConnection),
		factory: factory,
		metrics: metrics,
		logger:  logger.With("component", "gateway.hub"),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/chat", websocket.New(h.handleClient))
}

// handleClient drives one client connection: every incoming send frame
// becomes a conversation turn whose chunks are streamed back in order.
func (h *Hub) handleClient(c *websocket.Conn) {
	client := &ClientConnection{
		ID:        uuid.NewString(),
		SessionID: c.Query("session_id"),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	pipeline, err := h.factory(client.SessionID)
	if err != nil {
		h.logger.Error("pipeline construction failed", "error", err)
		client.Send(streamFrame{Type: string(voice.KindError), Error: err.Error()})
		return
	}
	client.SessionID = pipeline.SessionID()

	h.mu.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionsTotal.Inc()
	h.metrics.ConnectionsActive.Inc()
	h.logger.Info("client connected",
		"client_id", client.ID,
		"session_id", client.SessionID,
		"total", count,
	)

	defer func() {
		h.mu.Lock()
		delete(h.clients, client.ID)
		count := len(h.clients)
		h.mu.Unlock()

		h.metrics.ConnectionsActive.Dec()
		h.logger.Info("client disconnected", "client_id", client.ID, "total", count)
	}()

	for {
		var req clientRequest
		if err := c.ReadJSON(&req); err != nil {
			h.logger.Debug("client read ended", "client_id", client.ID, "error", err)
			return
		}

		client.mu.Lock()
		client.LastSeen = time.Now()
		client.mu.Unlock()
		h.messagesReceived.Add(1)

		if req.Action != "send" {
			client.Send(streamFrame{Type: string(voice.KindError), Error: "unsupported action"})
			continue
		}
		if req.Text == "" {
			client.Send(streamFrame{Type: string(voice.KindError), Error: "empty text"})
			continue
		}

		h.runTurn(client, pipeline, req.Text)
	}
}

// runTurn executes one turn and relays its chunks to the client.
func (h *Hub) runTurn(client *ClientConnection, pipeline *voice.Pipeline, text string) {
	started := time.Now()
	outcome := "ok"

	chunks, err := pipeline.Converse(context.Background(), text)
	if err != nil {
		h.logger.Error("turn failed to start", "client_id", client.ID, "error", err)
		client.Send(streamFrame{Type: string(voice.KindError), Error: err.Error()})
		h.metrics.ObserveTurn("error", started)
		return
	}

	for chunk := range chunks {
		frame := streamFrame{
			Type:      string(chunk.Kind),
			Seq:       chunk.Seq,
			Text:      chunk.Text,
			IsFinal:   chunk.IsFinal,
			Language:  chunk.Language,
			SessionID: chunk.SessionID,
		}
		if len(chunk.Audio) > 0 {
			frame.Audio = base64.StdEncoding.EncodeToString(chunk.Audio)
			h.metrics.AudioBytesTotal.Add(float64(len(chunk.Audio)))
		}
		if chunk.Err != nil {
			frame.Error = chunk.Err.Error()
			outcome = "error"
		}

		h.metrics.ChunksSentTotal.WithLabelValues(string(chunk.Kind)).Inc()
		h.messagesSent.Add(1)
		if err := client.Send(frame); err != nil {
			h.logger.Warn("client write failed", "client_id", client.ID, "error", err)
			h.metrics.ObserveTurn("disconnect", started)
			return
		}
	}

	h.metrics.ObserveTurn(outcome, started)
}

// Stats contains hub statistics.
type Stats struct {
	ClientCount      int    `json:"client_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	count := len(h.clients)
	h.mu.RUnlock()

	return Stats{
		ClientCount:      count,
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
	}
}

// ClientInfo contains info about a connected client.
type ClientInfo struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetClientInfos returns info about all connected clients.
func (h *Hub) GetClientInfos() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		c.mu.Lock()
		infos = append(infos, ClientInfo{
			ID:        c.ID,
			SessionID: c.SessionID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
		})
		c.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers management routes.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	clients := api.Group("/clients")

	clients.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients": h.GetClientInfos(),
			"count":   len(h.GetClientInfos()),
		})
	})

	clients.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

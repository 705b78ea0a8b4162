package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ServerError is an error frame reported by the backend.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("backend: server error: %s", e.Message)
}

// request is the outgoing wire frame for one turn.
type request struct {
	Action    string        `json:"action"`
	Text      string        `json:"text"`
	SessionID string        `json:"session_id,omitempty"`
	History   []HistoryTurn `json:"history,omitempty"`
}

// serverFrame is one incoming wire frame. Pointers distinguish an
// absent key from an empty value; exactly one of the three is expected
// per frame.
type serverFrame struct {
	ResponseChunk *string `json:"response_chunk"`
	Response      *string `json:"response"`
	Error         *string `json:"error"`
	SessionID     string  `json:"session_id"`
}

// Client is the live backend streamer. Safe for concurrent use, but
// only one turn may stream at a time.
type Client struct {
	config *Config

	connMu sync.Mutex
	conn   *websocket.Conn

	inFlight atomic.Bool
	closed   atomic.Bool
}

// NewClient creates a backend client for the given WebSocket URL. The
// connection is established lazily on the first turn.
func NewClient(wsURL string, opts ...Option) (*Client, error) {
	if wsURL == "" {
		return nil, ErrNoURL
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	cfg.URL = wsURL
	cfg.Logger = cfg.Logger.With("component", "backend.client")

	return &Client{config: cfg}, nil
}

// StreamMessage sends one turn and streams the re-chunked reply. A
// failed send is retried once on a fresh connection; a failure after
// that, or any receive failure, terminates the turn with an error
// chunk.
func (c *Client) StreamMessage(ctx context.Context, req Request) (<-chan Chunk, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}

	frame := request{
		Action:    "send",
		Text:      req.Text,
		SessionID: req.SessionID,
		History:   req.History,
	}
	if err := c.send(ctx, frame); err != nil {
		c.inFlight.Store(false)
		return nil, err
	}

	out := make(chan Chunk, 8)
	go c.receive(ctx, out)
	return out, nil
}

// send writes the turn frame, reconnecting once on failure.
func (c *Client) send(ctx context.Context, frame request) error {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(frame); err != nil {
		c.config.Logger.Warn("send failed, reconnecting", "error", err)
		c.dropConn(conn)
		if conn, err = c.ensureConn(ctx); err != nil {
			return err
		}
		if err := conn.WriteJSON(frame); err != nil {
			c.dropConn(conn)
			return wrapErr("send", err)
		}
	}
	return nil
}

// receive relays reply frames until the terminal one. Partial bursts
// are re-chunked and released with the pacing delay; the full text is
// accumulated so a final frame without text still yields a complete
// reply.
func (c *Client) receive(ctx context.Context, out chan<- Chunk) {
	defer close(out)
	defer c.inFlight.Store(false)

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	var accumulated strings.Builder
	var sessionID string

	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			c.dropConn(conn)
			// One reconnect attempt restores the connection for
			// the next turn; this turn is already lost.
			if _, rerr := c.ensureConn(ctx); rerr != nil {
				c.config.Logger.Warn("reconnect failed", "error", rerr)
			}
			out <- errorChunk(wrapErr("receive", err))
			return
		}

		if sessionID == "" {
			sessionID = frame.SessionID
		}

		switch {
		case frame.Error != nil:
			out <- Chunk{Kind: KindError, SessionID: sessionID, Err: &ServerError{Message: *frame.Error}}
			return

		case frame.Response != nil:
			text := *frame.Response
			if text == "" {
				text = accumulated.String()
			}
			out <- Chunk{Kind: KindFinal, Text: text, SessionID: sessionID}
			return

		case frame.ResponseChunk != nil:
			accumulated.WriteString(*frame.ResponseChunk)
			pieces := splitChunks(*frame.ResponseChunk, c.config.ChunkWords)
			for i, piece := range pieces {
				out <- Chunk{Kind: KindPartial, Text: piece + "\n", SessionID: sessionID}
				if i < len(pieces)-1 {
					select {
					case <-time.After(c.config.PacingDelay):
					case <-ctx.Done():
						out <- errorChunk(ctx.Err())
						return
					}
				}
			}

		default:
			c.config.Logger.Warn("unrecognized frame, skipping")
		}
	}
}

// ensureConn returns the live connection, dialing if needed.
func (c *Client) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	target, err := c.dialURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, wrapErr("dial", fmt.Errorf("status %d: %w", resp.StatusCode, err))
		}
		return nil, wrapErr("dial", err)
	}

	c.config.Logger.Info("connected", "url", c.config.URL)
	c.conn = conn
	return conn, nil
}

// dropConn closes and forgets the connection if it is still current.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == conn && conn != nil {
		conn.Close()
		c.conn = nil
	}
}

// dialURL builds the endpoint URL with the api-key parameter.
func (c *Client) dialURL() (string, error) {
	if c.config.APIKey == "" {
		return c.config.URL, nil
	}
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", wrapErr("parse url", err)
	}
	q := u.Query()
	q.Set("api-key", c.config.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Close tears down the connection. No further turns may be sent.
func (c *Client) Close() error {
	c.closed.Store(true)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

var _ Streamer = (*Client)(nil)

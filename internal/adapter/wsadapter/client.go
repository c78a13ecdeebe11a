// Package wsadapter implements adapter.Adapter over a persistent WebSocket
// connection, for tool-capable targets that prefer a long-lived
// bidirectional frame channel over request/response HTTP.
//
// Grounded on ui/transports/websocket/websocket.go: this module plays the
// teacher's server role in reverse — it's the client dialing out to a
// target's WebSocket endpoint — but keeps the same ping/pong keep-alive
// cadence (54s ping interval, 60s read deadline) and JSON-message framing.
package wsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/traffic"
)

// This package does not self-register: a generic-http AdapterSpec whose
// Params["transport"] is "websocket" is handled by httpgeneric, which
// delegates construction to wsadapter.New. A dedicated registry entry here
// would collide with httpgeneric's claim on AdapterGenericHTTP, since
// spec §2's AdapterKind enumeration has no separate "websocket" value.

const (
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
)

type wsMessage struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Client dials spec.Endpoint as a WebSocket and exchanges JSON frames.
type Client struct {
	conn     *websocket.Conn
	logger   core.Logger
	capture  *traffic.Capture
	endpoint string

	mu      sync.Mutex
	pending chan wsMessage
	done    chan struct{}
}

// New dials the target's WebSocket endpoint.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	conn, _, err := websocket.DefaultDialer.Dial(spec.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial websocket: %v", core.ErrTransientError, err)
	}

	c := &Client{
		conn:     conn,
		logger:   logger,
		capture:  capture,
		endpoint: spec.Endpoint,
		pending:  make(chan wsMessage, 16),
		done:     make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case c.pending <- msg:
		default:
			c.logger.Warn("wsadapter: dropping message, channel full", nil)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Invoke sends the latest turn as a "chat" message and waits for the next
// "message" reply frame.
func (c *Client) Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error) {
	var prompt string
	if len(turns) > 0 {
		prompt = turns[len(turns)-1].Content
	}

	start := time.Now()
	reqFrame := wsMessage{Type: "chat", Message: prompt}
	c.mu.Lock()
	err := c.conn.WriteJSON(reqFrame)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: write chat message: %v", core.ErrTransientError, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, fmt.Errorf("%w: websocket closed", core.ErrTransientError)
		case msg := <-c.pending:
			switch msg.Type {
			case "message", "done":
				text, _ := msg.Data["text"].(string)
				if text == "" {
					text = msg.Message
				}
				c.publishTraffic(reqFrame, msg, 200, "OK", start)
				return &core.ModelResponse{
					Text:         text,
					FinishReason: "stop",
					LatencyMS:    time.Since(start).Milliseconds(),
				}, nil
			case "error":
				errMsg, _ := msg.Data["message"].(string)
				c.publishTraffic(reqFrame, msg, 500, errMsg, start)
				return nil, fmt.Errorf("%w: %s", core.ErrProtocolError, errMsg)
			}
		}
	}
}

// publishTraffic records one chat-frame round trip as a traffic.Event;
// method is the WebSocket frame type rather than an HTTP verb.
func (c *Client) publishTraffic(req, resp wsMessage, statusCode int, statusText string, start time.Time) {
	if c.capture == nil {
		return
	}
	reqBody, _ := json.Marshal(req)
	respBody, _ := json.Marshal(resp)
	c.capture.Publish(traffic.Event{
		Method:       req.Type,
		URL:          c.endpoint,
		RequestBody:  reqBody,
		StatusCode:   statusCode,
		StatusText:   statusText,
		ResponseBody: respBody,
		StartedAt:    start,
		Duration:     time.Since(start),
	})
}

// EnumerateTools sends a "tools_list" request and awaits its reply.
func (c *Client) EnumerateTools(ctx context.Context) ([]adapter.ToolSchema, error) {
	c.mu.Lock()
	err := c.conn.WriteJSON(wsMessage{Type: "tools_list"})
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: write tools_list: %v", core.ErrTransientError, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-c.pending:
		raw, err := json.Marshal(msg.Data["tools"])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrProtocolError, err)
		}
		var tools []adapter.ToolSchema
		if err := json.Unmarshal(raw, &tools); err != nil {
			return nil, fmt.Errorf("%w: decode tools: %v", core.ErrProtocolError, err)
		}
		return tools, nil
	}
}

// CallTool sends a "tool_call" message and awaits its result.
func (c *Client) CallTool(ctx context.Context, call core.ToolCall) (string, error) {
	c.mu.Lock()
	err := c.conn.WriteJSON(wsMessage{Type: "tool_call", Data: map[string]interface{}{
		"name": call.Name, "arguments": call.Arguments,
	}})
	c.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("%w: write tool_call: %v", core.ErrTransientError, err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case msg := <-c.pending:
		result, _ := msg.Data["result"].(string)
		return result, nil
	}
}

// Close sends a graceful close frame and tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}

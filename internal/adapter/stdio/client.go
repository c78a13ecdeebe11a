// Package stdio implements adapter.Adapter over a child process speaking
// line-delimited JSON-RPC on stdin/stdout, for tool-capable targets like
// local model-context-protocol servers. The adapter owns the process: it
// starts the command on construction and the embedding caller must call
// Close to guarantee termination on scope exit, per spec §4.1.
//
// Grounded on the teacher's retry/logging conventions (ai/providers/base.go)
// for request bookkeeping; the line-delimited JSON-RPC framing itself has
// no teacher analogue (gomind is HTTP-only), so it follows the textbook
// shape: one JSON object per line, request/response correlated by "id".
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/traffic"
)

func init() {
	adapter.Register(core.AdapterStdio, New)
}

// Client owns a long-lived subprocess and speaks line-delimited JSON-RPC
// over its stdin/stdout pipes.
type Client struct {
	cmd     *exec.Cmd
	stdin   *bufio.Writer
	scanner *bufio.Scanner
	logger  core.Logger
	capture *traffic.Capture
	command string

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan rpcResponse
	readErr error
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// New starts spec.Command as a child process and begins reading its stdout
// in a background goroutine.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("%w: stdio adapter requires a command", core.ErrMissingConfiguration)
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", core.ErrTransientError, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", core.ErrTransientError, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start process: %v", core.ErrTransientError, err)
	}

	c := &Client{
		cmd:     cmd,
		stdin:   bufio.NewWriter(stdinPipe),
		scanner: bufio.NewScanner(stdoutPipe),
		logger:  logger,
		capture: capture,
		command: strings.Join(spec.Command, " "),
		pending: make(map[int64]chan rpcResponse),
	}
	c.scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	go c.readLoop()

	return c, nil
}

func (c *Client) readLoop() {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	if err := c.scanner.Err(); err != nil {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
	}
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", core.ErrProtocolError, err)
	}

	start := time.Now()
	c.mu.Lock()
	_, writeErr := c.stdin.Write(append(line, '\n'))
	if writeErr == nil {
		writeErr = c.stdin.Flush()
	}
	c.mu.Unlock()
	if writeErr != nil {
		return nil, fmt.Errorf("%w: write request: %v", core.ErrTransientError, writeErr)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			c.publishTraffic(method, line, start, 500, resp.Error.Message, nil)
			return nil, fmt.Errorf("%w: %s", core.ErrProtocolError, resp.Error.Message)
		}
		c.publishTraffic(method, line, start, 200, "OK", resp.Result)
		return resp.Result, nil
	}
}

// publishTraffic records one JSON-RPC round trip as a traffic.Event: method
// is the JSON-RPC method name (not an HTTP verb), URL is the child
// process's command line standing in for an endpoint.
func (c *Client) publishTraffic(method string, reqLine []byte, start time.Time, statusCode int, statusText string, result json.RawMessage) {
	if c.capture == nil {
		return
	}
	c.capture.Publish(traffic.Event{
		Method:       method,
		URL:          "stdio://" + c.command,
		RequestBody:  reqLine,
		StatusCode:   statusCode,
		StatusText:   statusText,
		ResponseBody: result,
		StartedAt:    start,
		Duration:     time.Since(start),
	})
}

// Invoke sends the latest turn as a "generate" JSON-RPC call.
func (c *Client) Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error) {
	var prompt string
	if len(turns) > 0 {
		prompt = turns[len(turns)-1].Content
	}

	start := time.Now()
	result, err := c.call(ctx, "generate", map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode generate result: %v", core.ErrProtocolError, err)
	}

	return &core.ModelResponse{
		Text:         payload.Text,
		FinishReason: "stop",
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

// EnumerateTools issues a "tools/list" JSON-RPC call, the MCP convention.
func (c *Client) EnumerateTools(ctx context.Context) ([]adapter.ToolSchema, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []adapter.ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode tools/list result: %v", core.ErrProtocolError, err)
	}
	return payload.Tools, nil
}

// CallTool issues a "tools/call" JSON-RPC call.
func (c *Client) CallTool(ctx context.Context, call core.ToolCall) (string, error) {
	result, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      call.Name,
		"arguments": call.Arguments,
	})
	if err != nil {
		return "", err
	}
	var payload struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("%w: decode tools/call result: %v", core.ErrProtocolError, err)
	}
	return payload.Result, nil
}

// Close terminates the child process, mandatory on scope exit per spec §4.1.
func (c *Client) Close() error {
	if c.cmd.Process == nil {
		return nil
	}
	_ = c.cmd.Process.Kill()
	return c.cmd.Wait()
}

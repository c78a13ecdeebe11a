// Package mockprovider implements adapter.Adapter with a scripted,
// in-process responder used by the harness's own test suite and by
// suite authors validating detector/judge/gate wiring without calling a
// real model.
//
// Grounded on ai/providers/mock/provider.go: same fixed-response-list plus
// response-index-and-error-override shape, same CallCount-style
// instrumentation fields (CallCount, LastTurns) for test assertions.
package mockprovider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/traffic"
)

func init() {
	adapter.Register(core.AdapterMock, New)
}

// Client is a scriptable Adapter for tests and suite authoring.
type Client struct {
	mu            sync.Mutex
	Responses     []string
	ResponseIndex int
	Err           error
	CallCount     int
	LastTurns     []core.Turn
	Tools         []adapter.ToolSchema
	ToolResults   map[string]string
	capture       *traffic.Capture
}

// New constructs a mock Client. Params["responses"] may preload scripted
// replies (string slice); absent params produce a single canned reply.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	c := &Client{Responses: []string{"mock response"}, ToolResults: map[string]string{}, capture: capture}
	if raw, ok := spec.Params["responses"]; ok {
		if list, ok := raw.([]interface{}); ok {
			c.Responses = c.Responses[:0]
			for _, v := range list {
				if s, ok := v.(string); ok {
					c.Responses = append(c.Responses, s)
				}
			}
		}
	}
	return c, nil
}

// SetResponses replaces the scripted response queue.
func (c *Client) SetResponses(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = responses
	c.ResponseIndex = 0
}

// SetError arms Invoke to fail with err on every call until SetError(nil)
// clears it.
func (c *Client) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Invoke returns the next scripted response in order.
func (c *Client) Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.CallCount++
	c.LastTurns = turns

	if c.Err != nil {
		return nil, c.Err
	}
	if c.ResponseIndex >= len(c.Responses) {
		return nil, errors.New("mockprovider: no more scripted responses")
	}

	text := c.Responses[c.ResponseIndex]
	c.ResponseIndex++

	var prompt string
	if len(turns) > 0 {
		prompt = turns[len(turns)-1].Content
	}

	if c.capture != nil {
		c.capture.Publish(traffic.Event{
			Method:       "MOCK",
			URL:          "mock://scripted-response",
			RequestBody:  []byte(prompt),
			StatusCode:   200,
			StatusText:   "OK",
			ResponseBody: []byte(text),
			StartedAt:    time.Now(),
		})
	}

	return &core.ModelResponse{
		Text:         text,
		FinishReason: "stop",
		InputTokens:  len(prompt) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}

// EnumerateTools returns the tools preconfigured via WithTools.
func (c *Client) EnumerateTools(ctx context.Context) ([]adapter.ToolSchema, error) {
	return c.Tools, nil
}

// WithTools preloads the tool schema EnumerateTools returns.
func (c *Client) WithTools(tools ...adapter.ToolSchema) *Client {
	c.Tools = tools
	return c
}

// CallTool returns the preconfigured canned result for call.Name, if any.
func (c *Client) CallTool(ctx context.Context, call core.ToolCall) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result, ok := c.ToolResults[call.Name]; ok {
		return result, nil
	}
	return "", errors.New("mockprovider: no result configured for tool " + call.Name)
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

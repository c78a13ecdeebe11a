// Package httpgeneric implements adapter.Adapter for the local-http and
// generic-http AdapterKinds: a thin transport around a caller-defined JSON
// request/response shape, for model servers that don't speak the OpenAI or
// Anthropic wire formats (e.g. a bespoke local inference server, or
// Gemini's REST surface referenced in the spec's provider enumeration).
//
// Grounded on ai/providers/base.go's BaseClient retry loop; the request and
// response body templates are configured per-spec (spec.Params) rather than
// hardcoded, since "generic" targets have no fixed schema by definition.
package httpgeneric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/adapter/wsadapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/traffic"
)

func init() {
	adapter.Register(core.AdapterLocalHTTP, New)
	adapter.Register(core.AdapterGenericHTTP, newGenericHTTPOrWebSocket)
}

// newGenericHTTPOrWebSocket dispatches a generic-http spec to the
// WebSocket transport when Params["transport"] requests it, otherwise
// falls through to the plain JSON/HTTP transport.
func newGenericHTTPOrWebSocket(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	if t, _ := spec.Params["transport"].(string); t == "websocket" {
		return wsadapter.New(spec, logger, capture)
	}
	return New(spec, logger, capture)
}

// Client POSTs a JSON body built from spec.Params["request_template"] (a
// map with "{{prompt}}" substituted for the latest user turn's content) and
// reads the reply text from the JSON path named by
// spec.Params["response_text_path"] (dot-separated, e.g. "output.text").
type Client struct {
	*adapter.BaseAdapter
	endpoint         string
	apiKey           string
	requestTemplate  map[string]interface{}
	responseTextPath string
}

// New constructs a Client from an AdapterSpec.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	apiKey := ""
	if spec.Auth.EnvVar != "" {
		apiKey = os.Getenv(spec.Auth.EnvVar)
	}

	template := map[string]interface{}{"prompt": "{{prompt}}"}
	if raw, ok := spec.Params["request_template"].(map[string]interface{}); ok {
		template = raw
	}
	textPath := "text"
	if raw, ok := spec.Params["response_text_path"].(string); ok && raw != "" {
		textPath = raw
	}

	return &Client{
		BaseAdapter:      adapter.NewBaseAdapter(60*time.Second, spec.Retry, logger, capture),
		endpoint:         spec.Endpoint,
		apiKey:           apiKey,
		requestTemplate:  template,
		responseTextPath: textPath,
	}, nil
}

// Invoke substitutes the last user turn into the request template and
// POSTs it to the endpoint.
func (c *Client) Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error) {
	var prompt string
	if len(turns) > 0 {
		prompt = turns[len(turns)-1].Content
	}

	body := substitutePrompt(c.requestTemplate, prompt)
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", core.ErrProtocolError, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrProtocolError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.ExecuteWithRetry(ctx, httpReq, func(r *http.Response) error {
		return adapter.ClassifyStatus(r.StatusCode)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", core.ErrTransientError, err)
	}
	c.PublishTraffic(http.MethodPost, c.endpoint, adapter.HeaderMap(httpReq.Header), jsonData,
		resp.StatusCode, resp.Status, adapter.HeaderMap(resp.Header), raw, start)

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", core.ErrProtocolError, err)
	}

	text, ok := lookupPath(parsed, c.responseTextPath)
	if !ok {
		return nil, fmt.Errorf("%w: response missing path %q", core.ErrProtocolError, c.responseTextPath)
	}

	return &core.ModelResponse{
		Text:         text,
		FinishReason: "stop",
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

func substitutePrompt(template map[string]interface{}, prompt string) map[string]interface{} {
	out := make(map[string]interface{}, len(template))
	for k, v := range template {
		if s, ok := v.(string); ok && s == "{{prompt}}" {
			out[k] = prompt
			continue
		}
		out[k] = v
	}
	return out
}

func lookupPath(m map[string]interface{}, path string) (string, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = asMap[p]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

// EnumerateTools is unsupported for a schema-less generic target.
func (c *Client) EnumerateTools(ctx context.Context) ([]adapter.ToolSchema, error) {
	return nil, nil
}

// CallTool is unsupported directly by this adapter.
func (c *Client) CallTool(ctx context.Context, call core.ToolCall) (string, error) {
	return "", fmt.Errorf("%w: httpgeneric adapter does not execute tools", core.ErrProtocolError)
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

// Package anthropic implements adapter.Adapter against Anthropic's native
// Messages API.
//
// Grounded on ai/providers/anthropic/client.go: same x-api-key +
// anthropic-version header pair, same system-prompt-as-top-level-field
// request shape (Anthropic keeps system separate from the messages array,
// unlike OpenAI-compatible transports).
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/traffic"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
)

func init() {
	adapter.Register(core.AdapterAnthropic, New)
}

// Client talks to Anthropic's Messages API.
type Client struct {
	*adapter.BaseAdapter
	endpoint string
	apiKey   string
	model    string
}

// New constructs a Client from an AdapterSpec.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	endpoint := spec.Endpoint
	if endpoint == "" {
		endpoint = defaultBaseURL
	}
	apiKey := ""
	if spec.Auth.EnvVar != "" {
		apiKey = os.Getenv(spec.Auth.EnvVar)
	}
	return &Client{
		BaseAdapter: adapter.NewBaseAdapter(60*time.Second, spec.Retry, logger, capture),
		endpoint:    endpoint,
		apiKey:      apiKey,
		model:       spec.Model,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type response struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends turns to the Messages API, pulling any system-role turn out
// into the top-level "system" field Anthropic expects.
func (c *Client) Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error) {
	var system string
	messages := make([]message, 0, len(turns))
	for _, t := range turns {
		if t.Role == core.RoleSystem {
			system = t.Content
			continue
		}
		role := "user"
		if t.Role == core.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, message{Role: role, Content: t.Content})
	}

	reqBody := request{Model: c.model, System: system, Messages: messages, MaxTokens: 1024}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", core.ErrProtocolError, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrProtocolError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.ExecuteWithRetry(ctx, httpReq, func(r *http.Response) error {
		return adapter.ClassifyStatus(r.StatusCode)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", core.ErrTransientError, err)
	}
	c.PublishTraffic(http.MethodPost, c.endpoint+"/messages", adapter.HeaderMap(httpReq.Header), jsonData,
		resp.StatusCode, resp.Status, adapter.HeaderMap(resp.Header), body, start)

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", core.ErrProtocolError, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrProtocolError, parsed.Error.Message)
	}

	var text string
	var toolCalls []core.ToolCall
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			toolCalls = append(toolCalls, core.ToolCall{Name: block.Name})
		}
	}

	return &core.ModelResponse{
		Text:         text,
		FinishReason: parsed.StopReason,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		ToolCalls:    toolCalls,
	}, nil
}

// EnumerateTools is unsupported: tool schemas come from the suite, not
// Anthropic discovery.
func (c *Client) EnumerateTools(ctx context.Context) ([]adapter.ToolSchema, error) {
	return nil, nil
}

// CallTool is unsupported directly by this adapter.
func (c *Client) CallTool(ctx context.Context, call core.ToolCall) (string, error) {
	return "", fmt.Errorf("%w: anthropic adapter does not execute tools", core.ErrProtocolError)
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

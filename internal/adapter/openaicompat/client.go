// Package openaicompat implements the adapter.Adapter contract against any
// OpenAI-compatible chat-completions endpoint (OpenAI itself, and the many
// local/self-hosted servers that mirror its wire format).
//
// Grounded on ai/providers/openai/client.go: same request-building shape
// (system+user message array, POST /chat/completions, Bearer auth header),
// same BaseClient-driven retry/logging. Response parsing is simplified to
// what a jailbreak/safety harness needs (text, finish_reason, token usage,
// tool_calls) rather than the teacher's full reasoning-model token-budget
// handling, which has no equivalent in spec §4.1.
package openaicompat

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

func init() {
	adapter.Register(core.AdapterOpenAICompatible, New)
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	*adapter.BaseAdapter
	endpoint string
	apiKey   string
	model    string
}

// New constructs a Client from an AdapterSpec, resolving the API key from
// the environment variable named in spec.Auth.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	apiKey := ""
	if spec.Auth.EnvVar != "" {
		apiKey = os.Getenv(spec.Auth.EnvVar)
	}
	return &Client{
		BaseAdapter: adapter.NewBaseAdapter(120*time.Second, spec.Retry, logger, capture),
		endpoint:    spec.Endpoint,
		apiKey:      apiKey,
		model:       spec.Model,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	FinishReason string `json:"finish_reason"`
	Message      struct {
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends the conversation's turns to the chat-completions endpoint.
func (c *Client) Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error) {
	messages := make([]chatMessage, 0, len(turns))
	for _, t := range turns {
		role := string(t.Role)
		if t.Role == core.RoleTool {
			role = "tool"
		}
		messages = append(messages, chatMessage{Role: role, Content: t.Content})
	}
	reqBody := chatRequest{Model: c.model, Messages: messages}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", core.ErrProtocolError, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewBuffer(jsonData))
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", core.ErrTransientError, err)
	}
	c.PublishTraffic(http.MethodPost, c.endpoint+"/chat/completions", adapter.HeaderMap(httpReq.Header), jsonData,
		resp.StatusCode, resp.Status, adapter.HeaderMap(resp.Header), body, start)

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", core.ErrProtocolError, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrProtocolError, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", core.ErrProtocolError)
	}

	choice := parsed.Choices[0]
	var toolCalls []core.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		toolCalls = append(toolCalls, core.ToolCall{Name: tc.Function.Name, Arguments: args})
	}

	c.Logger.Debug("openaicompat invoke complete", map[string]interface{}{
		"model":    c.model,
		"duration": time.Since(start),
	})

	return &core.ModelResponse{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		ToolCalls:    toolCalls,
	}, nil
}

// EnumerateTools is unsupported for the plain chat-completions surface;
// tool schemas are supplied by the caller, not discovered.
func (c *Client) EnumerateTools(ctx context.Context) ([]adapter.ToolSchema, error) {
	return nil, nil
}

// CallTool is not supported: OpenAI-compatible adapters return tool_calls
// for the harness to interpret, they don't execute tools themselves.
func (c *Client) CallTool(ctx context.Context, call core.ToolCall) (string, error) {
	return "", fmt.Errorf("%w: openaicompat adapter does not execute tools", core.ErrProtocolError)
}

// Close is a no-op: the HTTP client owns no resources beyond its transport.
func (c *Client) Close() error { return nil }

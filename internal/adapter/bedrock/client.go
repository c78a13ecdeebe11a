// Package bedrock implements adapter.Adapter against AWS Bedrock's Converse
// API, the provider-agnostic surface Bedrock exposes over Claude, Llama,
// Titan, and other hosted foundation models.
//
// Grounded on ai/providers/bedrock/client.go: same aws.Config-based client
// construction, same Converse-with-Message-array request shape, same
// ConverseOutputMemberMessage/ContentBlockMemberText unwrapping. Unlike the
// teacher (build-tag gated behind "bedrock" since gomind treats it as
// optional), this adapter is always compiled in: aipo's domain stack
// commits to exercising aws-sdk-go-v2 rather than hiding it.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/traffic"
)

func init() {
	adapter.Register(core.AdapterBedrock, New)
}

// Client talks to AWS Bedrock's Converse API.
type Client struct {
	bedrock *bedrockruntime.Client
	model   string
	logger  core.Logger
	capture *traffic.Capture
}

// New constructs a Client, loading AWS credentials the standard SDK way
// (env vars, shared config, IAM role) via config.LoadDefaultConfig.
// spec.Params["region"] overrides the SDK's default region resolution.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (adapter.Adapter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{}
	if region, ok := spec.Params["region"].(string); ok && region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", core.ErrMissingConfiguration, err)
	}

	if logger == nil {
		logger = core.NoOpLogger{}
	}

	return &Client{
		bedrock: bedrockruntime.NewFromConfig(cfg),
		model:   spec.Model,
		logger:  logger,
		capture: capture,
	}, nil
}

// Invoke sends turns to Bedrock's Converse API, translating system/user/
// assistant turns into Converse's Message/SystemContentBlock shapes.
func (c *Client) Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error) {
	var system []types.SystemContentBlock
	var messages []types.Message

	for _, t := range turns {
		if t.Role == core.RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: t.Content})
			continue
		}
		role := types.ConversationRoleUser
		if t.Role == core.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: t.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  &c.model,
		Messages: messages,
		System:   system,
	}

	start := time.Now()
	output, err := c.bedrock.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockErr(err)
	}

	if output.Output == nil {
		return nil, fmt.Errorf("%w: no output in bedrock response", core.ErrProtocolError)
	}

	var text string
	switch v := output.Output.(type) {
	case *types.ConverseOutputMemberMessage:
		for _, block := range v.Value.Content {
			if tb, ok := block.(*types.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected bedrock output type", core.ErrProtocolError)
	}

	resp := &core.ModelResponse{
		Text:         text,
		FinishReason: string(output.StopReason),
		LatencyMS:    time.Since(start).Milliseconds(),
	}
	if output.Usage != nil {
		if output.Usage.InputTokens != nil {
			resp.InputTokens = int(*output.Usage.InputTokens)
		}
		if output.Usage.OutputTokens != nil {
			resp.OutputTokens = int(*output.Usage.OutputTokens)
		}
	}

	c.logger.Debug("bedrock invoke complete", map[string]interface{}{
		"model": c.model, "duration": time.Since(start),
	})

	c.publishTraffic(input, output, start)

	return resp, nil
}

// publishTraffic records the Converse call as a traffic.Event. Bedrock has
// no raw HTTP request/response to capture (the SDK speaks its own signed
// wire protocol under the hood), so the logged body is the best-effort JSON
// rendering of the typed Converse input/output instead.
func (c *Client) publishTraffic(input *bedrockruntime.ConverseInput, output *bedrockruntime.ConverseOutput, start time.Time) {
	if c.capture == nil {
		return
	}
	reqBody, _ := json.Marshal(input)
	respBody, _ := json.Marshal(output)
	c.capture.Publish(traffic.Event{
		Method:       "POST",
		URL:          "bedrock-runtime/model/" + c.model + "/converse",
		RequestBody:  reqBody,
		StatusCode:   200,
		StatusText:   "OK",
		ResponseBody: respBody,
		StartedAt:    start,
		Duration:     time.Since(start),
	})
}

// classifyBedrockErr maps an aws-sdk-go-v2 error into the adapter sentinel
// taxonomy. The SDK's error types are checked by string match on the API
// error code since bedrockruntime's typed exceptions (ThrottlingException,
// ValidationException, AccessDeniedException) all satisfy smithy's
// APIError but aren't exported as a single switchable enum here.
func classifyBedrockErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ThrottlingException"), strings.Contains(msg, "TooManyRequestsException"):
		return fmt.Errorf("%w: %v", core.ErrRateLimitError, err)
	case strings.Contains(msg, "AccessDeniedException"), strings.Contains(msg, "UnrecognizedClientException"):
		return fmt.Errorf("%w: %v", core.ErrAuthError, err)
	case strings.Contains(msg, "ValidationException"), strings.Contains(msg, "ModelErrorException"):
		return fmt.Errorf("%w: %v", core.ErrProtocolError, err)
	default:
		return fmt.Errorf("%w: %v", core.ErrTransientError, err)
	}
}

// EnumerateTools is unsupported: Bedrock's toolConfig is suite-driven, not
// discoverable from the model.
func (c *Client) EnumerateTools(ctx context.Context) ([]adapter.ToolSchema, error) {
	return nil, nil
}

// CallTool is unsupported directly by this adapter.
func (c *Client) CallTool(ctx context.Context, call core.ToolCall) (string, error) {
	return "", fmt.Errorf("%w: bedrock adapter does not execute tools", core.ErrProtocolError)
}

// Close is a no-op: the Bedrock client owns no resources beyond its
// underlying HTTP transport.
func (c *Client) Close() error { return nil }
